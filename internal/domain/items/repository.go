package items

import (
	"context"

	"dataset-review/internal/domain/selection"
)

type Repository interface {
	Get(ctx context.Context, datasetID int, ref selection.ItemRef) (Item, error)
	Update(ctx context.Context, it Item) error

	// ListBySelection devuelve los ítems existentes del subconjunto,
	// ordenados por posición dentro de la selección.
	ListBySelection(ctx context.Context, datasetID int, sel selection.Selection) ([]Item, error)

	// ListByDataset devuelve todos los ítems del dataset ordenados por seq.
	ListByDataset(ctx context.Context, datasetID int) ([]Item, error)

	// ExistAll verifica que todos los ids pertenezcan al dataset.
	ExistAll(ctx context.Context, datasetID int, ids []int) (bool, error)

	// MaxSeq devuelve el último seq del dataset (0 si está vacío).
	MaxSeq(ctx context.Context, datasetID int) (int, error)
}
