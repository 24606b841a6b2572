package items

import (
	"context"
	"errors"
	"strings"
	"time"

	"dataset-review/internal/domain/selection"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("item not found")
)

// TaskStarter evita importar el paquete tasks (rompe ciclos).
// Se usa para pasar una tarea pendiente a in_progress al primer toque.
type TaskStarter interface {
	TouchItem(ctx context.Context, assigneeID string, datasetID int, ref selection.ItemRef) error
}

type Service struct {
	repo    Repository
	starter TaskStarter // puede ser nil
	now     func() time.Time
}

// NewService crea el servicio de ítems. starter puede ser nil si no hay
// tareas internas que arrancar (p.ej. en el flujo por código externo).
func NewService(repo Repository, starter TaskStarter) *Service {
	return &Service{
		repo:    repo,
		starter: starter,
		now:     time.Now,
	}
}

func (s *Service) Get(ctx context.Context, datasetID int, ref selection.ItemRef) (Item, error) {
	it, err := s.repo.Get(ctx, datasetID, ref)
	if err != nil {
		return Item{}, ErrNotFound
	}
	return it, nil
}

// Approve marca el ítem como aprobado y estampa quién revisó.
func (s *Service) Approve(ctx context.Context, datasetID int, ref selection.ItemRef, actor string) (Item, error) {
	return s.review(ctx, datasetID, ref, actor, func(it *Item) {
		it.Status = StatusApproved
	})
}

// Reject marca el ítem como rechazado.
func (s *Service) Reject(ctx context.Context, datasetID int, ref selection.ItemRef, actor string) (Item, error) {
	return s.review(ctx, datasetID, ref, actor, func(it *Item) {
		it.Status = StatusRejected
	})
}

// UpdateContent reemplaza el contenido actual y deja el ítem en
// "modified" (pendiente de re-verificación por el dueño).
func (s *Service) UpdateContent(ctx context.Context, datasetID int, ref selection.ItemRef, content, actor string) (Item, error) {
	if strings.TrimSpace(content) == "" {
		return Item{}, ErrInvalidInput
	}
	return s.review(ctx, datasetID, ref, actor, func(it *Item) {
		it.CurrentContent = content
		it.Status = StatusModified
	})
}

// SetMarked prende o apaga la marca del revisor. No es una acción de
// revisión: no estampa reviewed_by ni arranca tareas.
func (s *Service) SetMarked(ctx context.Context, datasetID int, ref selection.ItemRef, marked bool) (Item, error) {
	it, err := s.repo.Get(ctx, datasetID, ref)
	if err != nil {
		return Item{}, ErrNotFound
	}

	it.IsMarked = marked
	it.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, it); err != nil {
		return Item{}, err
	}
	return it, nil
}

func (s *Service) review(ctx context.Context, datasetID int, ref selection.ItemRef, actor string, mutate func(*Item)) (Item, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return Item{}, ErrInvalidInput
	}

	it, err := s.repo.Get(ctx, datasetID, ref)
	if err != nil {
		return Item{}, ErrNotFound
	}

	now := s.now()
	mutate(&it)
	it.ReviewedBy = actor
	it.ReviewedAt = &now
	it.UpdatedAt = now

	if err := s.repo.Update(ctx, it); err != nil {
		return Item{}, err
	}

	// Primer toque de una tarea asignada: best-effort, no corta la revisión.
	// El ref lleva id y seq del ítem ya resuelto, así las tareas por id-set
	// también avanzan aunque el request haya llegado por seq.
	if s.starter != nil {
		_ = s.starter.TouchItem(ctx, actor, datasetID, selection.ItemRef{Kind: ref.Kind, ID: it.ID, Seq: it.SeqNum})
	}

	return it, nil
}
