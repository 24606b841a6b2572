package tasks

import (
	"time"

	"dataset-review/internal/domain/selection"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDelegated  Status = "delegated" // re-delegada; la reemplaza una tarea nueva
)

// Prioridades: 0=normal, 1=alta, 2=urgente.
const (
	PriorityNormal = 0
	PriorityHigh   = 1
	PriorityUrgent = 2
)

// Task es una asignación de revisión a un usuario interno. La selección es
// inmutable después de crearla: solo cambian los estados de los ítems
// referidos y el estado de la tarea misma.
type Task struct {
	ID        string
	DatasetID int

	AssignerID string
	AssigneeID string

	Selection selection.Selection

	Priority int
	Note     string
	DueDate  *time.Time

	Status Status

	// ReviewedByAssigner: el delegador ya dio por vista la completación.
	// Completar la deja en false para que el delegador vea la novedad.
	ReviewedByAssigner bool

	// DelegatedFromID encadena el linaje de re-delegaciones.
	DelegatedFromID string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}
