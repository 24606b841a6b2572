package sessions

import (
	"time"

	"dataset-review/internal/domain/grants"
)

// Session es una instancia viva de acceso contra un grant. Cuenta contra
// el techo de concurrencia desde su admisión hasta su liberación (Leave
// explícito, barrido por inactividad o vencimiento absoluto).
type Session struct {
	ID      string
	Token   string // opaco, 64 hex chars
	GrantID string

	IPAddress string
	UserAgent string

	Left bool // liberada; el slot ya fue devuelto

	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time // vencimiento absoluto
}

// CapToGrant acota el vencimiento absoluto de la sesión al del grant:
// gana el que llegue primero.
func (s *Session) CapToGrant(g grants.Grant) {
	if g.ExpiresAt != nil && g.ExpiresAt.Before(s.ExpiresAt) {
		s.ExpiresAt = *g.ExpiresAt
	}
}
