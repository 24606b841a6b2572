package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"dataset-review/internal/domain/items"
	"dataset-review/internal/domain/selection"
)

// ItemsRepo guarda ítems en memoria con un índice por (dataset, seq) para
// resolver referencias de rango.
type ItemsRepo struct {
	mu    sync.RWMutex
	byID  map[int]items.Item
	bySeq map[int]map[int]int // datasetID -> seq -> item id
}

func NewItemsRepo() *ItemsRepo {
	return &ItemsRepo{
		byID:  make(map[int]items.Item),
		bySeq: make(map[int]map[int]int),
	}
}

// Seed carga ítems de entrada (dev y tests).
func (r *ItemsRepo) Seed(list ...items.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, it := range list {
		r.byID[it.ID] = it
		seqs, ok := r.bySeq[it.DatasetID]
		if !ok {
			seqs = make(map[int]int)
			r.bySeq[it.DatasetID] = seqs
		}
		seqs[it.SeqNum] = it.ID
	}
}

func (r *ItemsRepo) Get(ctx context.Context, datasetID int, ref selection.ItemRef) (items.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(datasetID, ref)
}

func (r *ItemsRepo) get(datasetID int, ref selection.ItemRef) (items.Item, error) {
	var id int
	switch ref.Kind {
	case selection.KindIDSet:
		id = ref.ID
	case selection.KindRange:
		id = r.bySeq[datasetID][ref.Seq]
	}

	it, ok := r.byID[id]
	if !ok || it.DatasetID != datasetID {
		return items.Item{}, items.ErrNotFound
	}
	return it, nil
}

func (r *ItemsRepo) Update(ctx context.Context, it items.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[it.ID]; !exists {
		return items.ErrNotFound
	}
	r.byID[it.ID] = it
	return nil
}

func (r *ItemsRepo) ListBySelection(ctx context.Context, datasetID int, sel selection.Selection) ([]items.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]items.Item, 0, sel.Count())
	for pos := 1; pos <= sel.Count(); pos++ {
		ref, err := sel.Resolve(pos)
		if err != nil {
			return nil, err
		}
		it, err := r.get(datasetID, ref)
		if err != nil {
			if errors.Is(err, items.ErrNotFound) {
				// selección puede referir a huecos; se listan los que existen
				continue
			}
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *ItemsRepo) ListByDataset(ctx context.Context, datasetID int) ([]items.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]items.Item, 0)
	for _, it := range r.byID {
		if it.DatasetID == datasetID {
			out = append(out, it)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].SeqNum < out[j].SeqNum
	})
	return out, nil
}

func (r *ItemsRepo) MaxSeq(ctx context.Context, datasetID int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	max := 0
	for seq := range r.bySeq[datasetID] {
		if seq > max {
			max = seq
		}
	}
	return max, nil
}

func (r *ItemsRepo) ExistAll(ctx context.Context, datasetID int, ids []int) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range ids {
		it, ok := r.byID[id]
		if !ok || it.DatasetID != datasetID {
			return false, nil
		}
	}
	return true, nil
}
