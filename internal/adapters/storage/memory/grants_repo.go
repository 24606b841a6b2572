package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"dataset-review/internal/domain/grants"
)

// GrantsRepo guarda grants y su auditoría en memoria. Expone el lock de
// admisión por grant que usa SessionsRepo: la exclusión es por grant,
// nunca un lock global sobre todos.
type GrantsRepo struct {
	mu      sync.RWMutex
	byID    map[string]grants.Grant
	byCode  map[string]string // code -> grant id
	reviews map[string][]grants.ReviewRecord

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex // grant id -> lock de admisión
}

func NewGrantsRepo() *GrantsRepo {
	return &GrantsRepo{
		byID:    make(map[string]grants.Grant),
		byCode:  make(map[string]string),
		reviews: make(map[string][]grants.ReviewRecord),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (r *GrantsRepo) Create(ctx context.Context, g grants.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(g.ID) == "" || strings.TrimSpace(g.Code) == "" {
		return errors.New("grant id and code required")
	}
	if _, exists := r.byID[g.ID]; exists {
		return errors.New("grant already exists")
	}
	if _, taken := r.byCode[g.Code]; taken {
		return grants.ErrCodeTaken
	}

	r.byID[g.ID] = g
	r.byCode[g.Code] = g.ID
	return nil
}

func (r *GrantsRepo) GetByID(ctx context.Context, id string) (grants.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.byID[id]
	if !ok {
		return grants.Grant{}, grants.ErrNotFound
	}
	return g, nil
}

func (r *GrantsRepo) GetByCode(ctx context.Context, code string) (grants.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[code]
	if !ok {
		return grants.Grant{}, grants.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *GrantsRepo) ListByDataset(ctx context.Context, datasetID int) ([]grants.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]grants.Grant, 0)
	for _, g := range r.byID {
		if g.DatasetID == datasetID {
			out = append(out, g)
		}
	}

	// Orden estable por created_at asc (solo para consistencia en dev)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *GrantsRepo) SetActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.byID[id]
	if !ok {
		return grants.ErrNotFound
	}
	g.Active = active
	r.byID[id] = g
	return nil
}

func (r *GrantsRepo) CreateReview(ctx context.Context, rec grants.ReviewRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.GrantID) == "" {
		return errors.New("review id and grant id required")
	}
	r.reviews[rec.GrantID] = append(r.reviews[rec.GrantID], rec)
	return nil
}

func (r *GrantsRepo) GetReview(ctx context.Context, grantID string, itemID int) (grants.ReviewRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.reviews[grantID] {
		if rec.ItemID == itemID {
			return rec, nil
		}
	}
	return grants.ReviewRecord{}, grants.ErrNotFound
}

func (r *GrantsRepo) ListReviews(ctx context.Context, grantID string) ([]grants.ReviewRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := r.reviews[grantID]
	out := make([]grants.ReviewRecord, len(recs))
	copy(out, recs)

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// admitLock devuelve el mutex de admisión del grant, creándolo a demanda.
func (r *GrantsRepo) admitLock(grantID string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()

	m, ok := r.locks[grantID]
	if !ok {
		m = &sync.Mutex{}
		r.locks[grantID] = m
	}
	return m
}

// putCounters escribe solo los contadores del grant guardado. Solo lo usa
// SessionsRepo con el lock de admisión tomado; el resto de los campos
// (Active, ExpiresAt) pueden moverse por fuera de ese lock y una copia
// releída no debe pisarlos.
func (r *GrantsRepo) putCounters(g grants.Grant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[g.ID]
	if !ok {
		return
	}
	cur.CurrentOnline = g.CurrentOnline
	cur.VerifyCount = g.VerifyCount
	r.byID[g.ID] = cur
}
