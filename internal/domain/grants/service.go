package grants

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"dataset-review/internal/domain/selection"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("authorization code not found")
	ErrRevoked             = errors.New("authorization code revoked")
	ErrExpired             = errors.New("authorization code expired")
	ErrVerifyLimitExceeded = errors.New("verify limit exceeded")
	ErrCapacityExceeded    = errors.New("online capacity exceeded")
	ErrExhaustedCodespace  = errors.New("could not generate a unique code")
	ErrCodeTaken           = errors.New("code already taken")
	ErrPermissionDenied    = errors.New("permission denied")
)

// Intentos de generación antes de rendirse con ErrExhaustedCodespace.
const maxCodeAttempts = 10

// ItemLookup evita importar el paquete items (rompe ciclos).
type ItemLookup interface {
	ExistAll(ctx context.Context, datasetID int, ids []int) (bool, error)
	MaxSeq(ctx context.Context, datasetID int) (int, error)
}

// ProgressLookup evita importar el paquete progress (rompe ciclos).
type ProgressLookup interface {
	ReviewedCount(ctx context.Context, datasetID int, sel selection.Selection) (int, error)
}

type Service struct {
	repo     Repository
	items    ItemLookup
	progress ProgressLookup // puede ser nil; List devuelve reviewed_count=0
	now      func() time.Time
	genCode  func() string
}

func NewService(repo Repository, items ItemLookup, progress ProgressLookup) *Service {
	return &Service{
		repo:     repo,
		items:    items,
		progress: progress,
		now:      time.Now,
		genCode:  GenerateCode,
	}
}

// GenerateCode genera un código numérico de 6 dígitos. No es único por
// construcción: Create reintenta contra el repo hasta que no colisione.
func GenerateCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		// crypto/rand no debería fallar; último recurso determinístico
		return fmt.Sprintf("%06d", time.Now().UnixNano()%1_000_000)
	}
	return fmt.Sprintf("%06d", n.Int64())
}

type CreateInput struct {
	DatasetID      int
	Selection      selection.Selection
	Permission     Permission
	MaxOnline      int
	MaxVerifyCount int
	ExpiresAt      *time.Time
	CreatorID      string
}

// Create valida la selección y los límites, y emite un grant con un
// código único. La unicidad la garantiza el repo (ErrCodeTaken) y no el
// generador: generate-and-check acotado a maxCodeAttempts.
func (s *Service) Create(ctx context.Context, in CreateInput) (Grant, error) {
	creatorID := strings.TrimSpace(in.CreatorID)
	if in.DatasetID <= 0 || creatorID == "" {
		return Grant{}, ErrInvalidInput
	}

	perm := in.Permission
	if perm == "" {
		perm = PermissionEdit
	}
	if !perm.Valid() {
		return Grant{}, ErrInvalidInput
	}

	if in.MaxOnline <= 0 || in.MaxVerifyCount <= 0 {
		return Grant{}, ErrInvalidInput
	}
	if in.Selection.Count() == 0 {
		return Grant{}, ErrInvalidInput
	}

	// Una selección por ids debe referir solo a ítems del dataset; un
	// rango no puede pasarse del último seq existente.
	if s.items != nil {
		if ids := in.Selection.IDs(); len(ids) > 0 {
			ok, err := s.items.ExistAll(ctx, in.DatasetID, ids)
			if err != nil {
				return Grant{}, err
			}
			if !ok {
				return Grant{}, ErrInvalidInput
			}
		} else if _, end, ok := in.Selection.Range(); ok {
			max, err := s.items.MaxSeq(ctx, in.DatasetID)
			if err != nil {
				return Grant{}, err
			}
			if end > max {
				return Grant{}, ErrInvalidInput
			}
		}
	}

	now := s.now()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		g := Grant{
			ID:             uuid.NewString(),
			Code:           s.genCode(),
			DatasetID:      in.DatasetID,
			Selection:      in.Selection,
			Permission:     perm,
			MaxOnline:      in.MaxOnline,
			MaxVerifyCount: in.MaxVerifyCount,
			ExpiresAt:      in.ExpiresAt,
			Active:         true,
			CreatorID:      creatorID,
			CreatedAt:      now,
		}
		err := s.repo.Create(ctx, g)
		if err == nil {
			return g, nil
		}
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		return Grant{}, err
	}
	return Grant{}, ErrExhaustedCodespace
}

func (s *Service) GetByID(ctx context.Context, id string) (Grant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Grant{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Grant, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Grant{}, ErrInvalidInput
	}
	return s.repo.GetByCode(ctx, code)
}

// Revoke desactiva el grant sin borrarlo: la auditoría de quién revisó qué
// sobrevive. No mata sesiones ya emitidas, solo bloquea nuevos Verify.
// Idempotente.
func (s *Service) Revoke(ctx context.Context, id, ownerID string) (Grant, error) {
	id = strings.TrimSpace(id)
	ownerID = strings.TrimSpace(ownerID)
	if id == "" || ownerID == "" {
		return Grant{}, ErrInvalidInput
	}

	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Grant{}, err
	}
	if g.CreatorID != ownerID {
		return Grant{}, ErrPermissionDenied
	}
	if !g.Active {
		return g, nil
	}

	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return Grant{}, err
	}
	g.Active = false
	return g, nil
}

// Summary expone el grant con sus campos derivados en vivo.
type Summary struct {
	Grant
	ReviewedCount int
}

// List devuelve los grants del dataset creados por ownerID, con contadores
// vivos y el conteo de ítems ya revisados del subconjunto.
func (s *Service) List(ctx context.Context, datasetID int, ownerID string) ([]Summary, error) {
	ownerID = strings.TrimSpace(ownerID)
	if datasetID <= 0 || ownerID == "" {
		return nil, ErrInvalidInput
	}

	all, err := s.repo.ListByDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(all))
	for _, g := range all {
		if g.CreatorID != ownerID {
			continue
		}
		sum := Summary{Grant: g}
		if s.progress != nil {
			n, err := s.progress.ReviewedCount(ctx, g.DatasetID, g.Selection)
			if err == nil {
				sum.ReviewedCount = n
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// RecordReview registra (best-effort, idempotente por ítem) que una
// revisión se hizo bajo este código. Es un log consultivo: no participa
// del estado del ítem.
func (s *Service) RecordReview(ctx context.Context, code string, itemID int, action string) (ReviewRecord, error) {
	code = strings.TrimSpace(code)
	action = strings.TrimSpace(action)
	if code == "" || itemID <= 0 || action == "" {
		return ReviewRecord{}, ErrInvalidInput
	}

	g, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return ReviewRecord{}, err
	}

	if existing, err := s.repo.GetReview(ctx, g.ID, itemID); err == nil {
		return existing, nil
	}

	rec := ReviewRecord{
		ID:        uuid.NewString(),
		GrantID:   g.ID,
		ItemID:    itemID,
		Action:    action,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateReview(ctx, rec); err != nil {
		return ReviewRecord{}, err
	}
	return rec, nil
}

// ListReviews devuelve la auditoría del código; solo para su creador.
func (s *Service) ListReviews(ctx context.Context, code, ownerID string) ([]ReviewRecord, error) {
	code = strings.TrimSpace(code)
	ownerID = strings.TrimSpace(ownerID)
	if code == "" || ownerID == "" {
		return nil, ErrInvalidInput
	}

	g, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if g.CreatorID != ownerID {
		return nil, ErrPermissionDenied
	}
	return s.repo.ListReviews(ctx, g.ID)
}
