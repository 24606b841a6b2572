package tasks

import (
	"context"
	"errors"
	"strings"
	"time"

	"dataset-review/internal/domain/selection"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("task not found")
	ErrForbidden    = errors.New("forbidden")
	ErrBadState     = errors.New("invalid state")
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

type CreateInput struct {
	DatasetID  int
	AssignerID string
	AssigneeID string
	Selection  selection.Selection
	Priority   int
	Note       string
	DueDate    *time.Time
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Task, error) {
	assignerID := strings.TrimSpace(in.AssignerID)
	assigneeID := strings.TrimSpace(in.AssigneeID)

	if in.DatasetID <= 0 || assignerID == "" || assigneeID == "" {
		return Task{}, ErrInvalidInput
	}
	if assignerID == assigneeID {
		return Task{}, ErrInvalidInput
	}
	if in.Selection.Count() == 0 {
		return Task{}, ErrInvalidInput
	}
	if in.Priority < PriorityNormal || in.Priority > PriorityUrgent {
		return Task{}, ErrInvalidInput
	}

	now := s.now()
	t := Task{
		ID:         uuid.NewString(),
		DatasetID:  in.DatasetID,
		AssignerID: assignerID,
		AssigneeID: assigneeID,
		Selection:  in.Selection,
		Priority:   in.Priority,
		Note:       strings.TrimSpace(in.Note),
		DueDate:    in.DueDate,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Task, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Task{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByAssignee(ctx context.Context, assigneeID string) ([]Task, error) {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByAssignee(ctx, assigneeID)
}

func (s *Service) ListByAssigner(ctx context.Context, assignerID string) ([]Task, error) {
	assignerID = strings.TrimSpace(assignerID)
	if assignerID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByAssigner(ctx, assignerID)
}

// TouchItem pasa a in_progress las tareas pendientes del assignee cuya
// selección contiene el ítem tocado. Es el "primer toque": se dispara
// best-effort desde el servicio de ítems.
func (s *Service) TouchItem(ctx context.Context, assigneeID string, datasetID int, ref selection.ItemRef) error {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" || datasetID <= 0 {
		return ErrInvalidInput
	}

	list, err := s.repo.ListByAssignee(ctx, assigneeID)
	if err != nil {
		return err
	}

	now := s.now()
	for _, t := range list {
		if t.DatasetID != datasetID || t.Status != StatusPending {
			continue
		}
		if !t.Selection.Contains(t.Selection.RefOf(ref.ID, ref.Seq)) {
			continue
		}
		t.Status = StatusInProgress
		t.UpdatedAt = now
		if err := s.repo.Update(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Complete marca la tarea como completada. Siempre es una acción
// explícita del assignee: nunca se infiere de la cobertura al 100%,
// porque un revisor puede dejar ítems pendientes a propósito. Deja
// ReviewedByAssigner en false para que el delegador vea la novedad.
// Idempotente.
func (s *Service) Complete(ctx context.Context, taskID, assigneeID string) (Task, error) {
	t, err := s.getOwned(ctx, taskID, assigneeID, false)
	if err != nil {
		return Task{}, err
	}

	if t.Status == StatusCompleted {
		return t, nil
	}
	if t.Status == StatusDelegated {
		return Task{}, ErrBadState
	}

	now := s.now()
	t.Status = StatusCompleted
	t.ReviewedByAssigner = false
	t.CompletedAt = &now
	t.UpdatedAt = now

	if err := s.repo.Update(ctx, t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Acknowledge: el delegador da por vista la completación. Idempotente.
func (s *Service) Acknowledge(ctx context.Context, taskID, assignerID string) (Task, error) {
	t, err := s.getOwned(ctx, taskID, assignerID, true)
	if err != nil {
		return Task{}, err
	}

	if t.Status != StatusCompleted {
		return Task{}, ErrBadState
	}
	if t.ReviewedByAssigner {
		return t, nil
	}

	t.ReviewedByAssigner = true
	t.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Delegate re-delega la tarea: crea una nueva apuntando a esta vía
// DelegatedFromID (lista de referencias al padre, no reconstrucción
// recursiva) y deja la original en delegated.
func (s *Service) Delegate(ctx context.Context, taskID, assigneeID, newAssigneeID, note string) (Task, error) {
	newAssigneeID = strings.TrimSpace(newAssigneeID)
	if newAssigneeID == "" {
		return Task{}, ErrInvalidInput
	}

	t, err := s.getOwned(ctx, taskID, assigneeID, false)
	if err != nil {
		return Task{}, err
	}
	if t.Status == StatusCompleted || t.Status == StatusDelegated {
		return Task{}, ErrBadState
	}
	if newAssigneeID == t.AssigneeID {
		return Task{}, ErrInvalidInput
	}

	now := s.now()
	note = strings.TrimSpace(note)
	if note == "" {
		note = "delegated from task " + t.ID
	}

	nt := Task{
		ID:              uuid.NewString(),
		DatasetID:       t.DatasetID,
		AssignerID:      t.AssigneeID, // el que delega pasa a ser assigner
		AssigneeID:      newAssigneeID,
		Selection:       t.Selection,
		Priority:        t.Priority,
		Note:            note,
		DueDate:         t.DueDate,
		Status:          StatusPending,
		DelegatedFromID: t.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, nt); err != nil {
		return Task{}, err
	}

	t.Status = StatusDelegated
	t.UpdatedAt = now
	if err := s.repo.Update(ctx, t); err != nil {
		return Task{}, err
	}
	return nt, nil
}

// History devuelve la cadena de delegación, la más antigua primero.
func (s *Service) History(ctx context.Context, taskID string) ([]Task, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, ErrInvalidInput
	}

	out := make([]Task, 0, 4)
	seen := map[string]struct{}{}

	id := taskID
	for id != "" {
		if _, dup := seen[id]; dup {
			break // cadena corrupta; cortar antes que ciclar
		}
		seen[id] = struct{}{}

		t, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if len(out) > 0 {
				break
			}
			return nil, err
		}
		out = append(out, t)
		id = t.DelegatedFromID
	}

	// invertir: la más antigua primero
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// getOwned trae la tarea validando quién puede operarla: el assignee
// (asAssigner=false) o el assigner (asAssigner=true).
func (s *Service) getOwned(ctx context.Context, taskID, userID string, asAssigner bool) (Task, error) {
	taskID = strings.TrimSpace(taskID)
	userID = strings.TrimSpace(userID)
	if taskID == "" || userID == "" {
		return Task{}, ErrInvalidInput
	}

	t, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return Task{}, err
	}

	owner := t.AssigneeID
	if asAssigner {
		owner = t.AssignerID
	}
	if owner != userID {
		return Task{}, ErrForbidden
	}
	return t, nil
}
