package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"dataset-review/internal/domain/tasks"
)

type TasksRepo struct {
	mu   sync.RWMutex
	byID map[string]tasks.Task
}

func NewTasksRepo() *TasksRepo {
	return &TasksRepo{
		byID: make(map[string]tasks.Task),
	}
}

func (r *TasksRepo) Create(ctx context.Context, t tasks.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(t.ID) == "" {
		return errors.New("task id required")
	}
	if _, exists := r.byID[t.ID]; exists {
		return errors.New("task already exists")
	}
	r.byID[t.ID] = t
	return nil
}

func (r *TasksRepo) Update(ctx context.Context, t tasks.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[t.ID]; !exists {
		return tasks.ErrNotFound
	}
	r.byID[t.ID] = t
	return nil
}

func (r *TasksRepo) GetByID(ctx context.Context, id string) (tasks.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return tasks.Task{}, tasks.ErrNotFound
	}
	return t, nil
}

func (r *TasksRepo) ListByAssignee(ctx context.Context, assigneeID string) ([]tasks.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(t tasks.Task) bool { return t.AssigneeID == assigneeID }), nil
}

func (r *TasksRepo) ListByAssigner(ctx context.Context, assignerID string) ([]tasks.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(t tasks.Task) bool { return t.AssignerID == assignerID }), nil
}

func (r *TasksRepo) filter(keep func(tasks.Task) bool) []tasks.Task {
	out := make([]tasks.Task, 0)
	for _, t := range r.byID {
		if keep(t) {
			out = append(out, t)
		}
	}

	// Orden estable por created_at asc (solo para consistencia en dev)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
