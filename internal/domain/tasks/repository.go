package tasks

import "context"

type Repository interface {
	Create(ctx context.Context, t Task) error
	Update(ctx context.Context, t Task) error
	GetByID(ctx context.Context, id string) (Task, error)
	ListByAssignee(ctx context.Context, assigneeID string) ([]Task, error)
	ListByAssigner(ctx context.Context, assignerID string) ([]Task, error)
}
