package grants

import (
	"time"

	"dataset-review/internal/domain/selection"
)

type Permission string

const (
	PermissionView    Permission = "view"
	PermissionComment Permission = "comment"
	PermissionEdit    Permission = "edit"
)

func (p Permission) Valid() bool {
	switch p {
	case PermissionView, PermissionComment, PermissionEdit:
		return true
	}
	return false
}

// CanWrite indica si el permiso admite transiciones de estado sobre ítems.
func (p Permission) CanWrite() bool {
	return p != PermissionView
}

// Grant es el código de autorización: acceso acotado a un subconjunto de
// ítems, con techo de sesiones concurrentes y de verificaciones de por vida.
type Grant struct {
	ID   string
	Code string // 6 dígitos, único; lo tipea un humano

	DatasetID int
	Selection selection.Selection

	Permission Permission

	MaxOnline     int
	CurrentOnline int // mutado solo por la admisión/liberación de sesiones

	MaxVerifyCount int
	VerifyCount    int // monótono creciente

	ExpiresAt *time.Time
	Active    bool

	CreatorID string
	CreatedAt time.Time
}

// Expired indica si el grant ya venció a la hora dada.
func (g Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

// Admit corre las precondiciones de Verify en orden (revocado, vencido,
// límite de verificaciones, capacidad) y, si todas pasan, aplica los dos
// incrementos. El llamador debe garantizar exclusión por grant alrededor
// del ciclo leer-Admit-guardar: mutex por grant en memoria, row lock en
// Postgres. Nunca un lock global sobre todos los grants.
func (g *Grant) Admit(now time.Time) error {
	if !g.Active {
		return ErrRevoked
	}
	if g.Expired(now) {
		return ErrExpired
	}
	if g.VerifyCount >= g.MaxVerifyCount {
		return ErrVerifyLimitExceeded
	}
	if g.CurrentOnline >= g.MaxOnline {
		return ErrCapacityExceeded
	}
	g.VerifyCount++
	g.CurrentOnline++
	return nil
}

// ReleaseSlot libera un slot en línea; nunca baja de cero.
func (g *Grant) ReleaseSlot() {
	if g.CurrentOnline > 0 {
		g.CurrentOnline--
	}
}

// ReviewRecord es el registro de auditoría de una revisión hecha bajo un
// código. Best-effort: se conserva aunque el grant se revoque.
type ReviewRecord struct {
	ID        string
	GrantID   string
	ItemID    int
	Action    string // approve, reject, modify
	CreatedAt time.Time
}
