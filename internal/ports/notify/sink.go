package notify

import (
	"context"
	"time"
)

// Tipos de evento que emite el coordinador de delegación.
const (
	EventCodeCreated   = "auth_code.created"
	EventCodeRevoked   = "auth_code.revoked"
	EventTaskDelegated = "task.delegated"
)

// Event es una notificación de delegación para sistemas externos
// (chat del equipo, auditoría). Best-effort: perder un evento no
// puede afectar la operación que lo originó.
type Event struct {
	Type       string    `json:"type"`
	DatasetID  int       `json:"dataset_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	TargetID   string    `json:"target_id,omitempty"`
	GrantID    string    `json:"grant_id,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Sink interface {
	Emit(ctx context.Context, ev Event) error
}
