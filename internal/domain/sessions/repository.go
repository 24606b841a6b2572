package sessions

import (
	"context"
	"errors"
	"time"

	"dataset-review/internal/domain/grants"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrClosed   = errors.New("session closed")
)

// ReleaseStatus distingue la primera liberación de las repetidas.
type ReleaseStatus string

const (
	Released        ReleaseStatus = "released"
	AlreadyReleased ReleaseStatus = "already_released"
)

// Repository persiste sesiones y ejecuta la admisión y la liberación como
// unidades atómicas.
//
// Admit localiza el grant por código y, bajo exclusión por grant (mutex
// por grant en memoria, SELECT ... FOR UPDATE en Postgres), corre
// grants.Grant.Admit y persiste la sesión con los contadores nuevos. Dos
// Admit concurrentes contra el mismo código nunca superan juntos el techo
// de capacidad. La exclusión es por grant: operaciones sobre grants
// distintos no se serializan entre sí.
//
// Release marca la sesión como liberada y devuelve el slot exactamente
// una vez; la segunda liberación es AlreadyReleased sin efecto.
type Repository interface {
	Admit(ctx context.Context, code string, s Session, now time.Time) (Session, grants.Grant, error)
	Release(ctx context.Context, token string, now time.Time) (ReleaseStatus, error)
	GetByToken(ctx context.Context, token string) (Session, error)
	Touch(ctx context.Context, token string, now time.Time) error

	// ListIdle devuelve tokens de sesiones vivas cuya última actividad es
	// anterior a cutoff o cuyo vencimiento absoluto ya pasó.
	ListIdle(ctx context.Context, cutoff, now time.Time) ([]string, error)
}
