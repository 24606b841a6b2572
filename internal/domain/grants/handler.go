package grants

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dataset-review/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registra las vistas del dueño sobre sus códigos y la
// auditoría de revisiones. Crear y revocar pasan por el coordinador de
// delegación; la verificación y el leave viven en el handler de sessions.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Get("/datasets/{datasetID}/auth-codes", listGrantsHandler(svc))
	r.Post("/auth-codes/{code}/record-review", recordReviewHandler(svc))
	r.Get("/auth-codes/{code}/reviewed", listReviewsHandler(svc))
}

// GrantResponse es la forma pública de un grant. Exportada porque el
// handler de delegación la reusa al crear códigos.
type GrantResponse struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	DatasetID      int        `json:"dataset_id"`
	ItemStart      int        `json:"item_start,omitempty"`
	ItemEnd        int        `json:"item_end,omitempty"`
	ItemIDs        []int      `json:"item_ids,omitempty"`
	Permission     Permission `json:"permission"`
	MaxOnline      int        `json:"max_online"`
	CurrentOnline  int        `json:"current_online"`
	MaxVerifyCount int        `json:"max_verify_count"`
	VerifyCount    int        `json:"verify_count"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Active         bool       `json:"is_active"`
	CreatorID      string     `json:"creator_id"`
	CreatedAt      time.Time  `json:"created_at"`
	ReviewedCount  int        `json:"reviewed_count"`
}

func ToGrantResponse(g Grant, reviewedCount int) GrantResponse {
	resp := GrantResponse{
		ID:             g.ID,
		Code:           g.Code,
		DatasetID:      g.DatasetID,
		Permission:     g.Permission,
		MaxOnline:      g.MaxOnline,
		CurrentOnline:  g.CurrentOnline,
		MaxVerifyCount: g.MaxVerifyCount,
		VerifyCount:    g.VerifyCount,
		ExpiresAt:      g.ExpiresAt,
		Active:         g.Active,
		CreatorID:      g.CreatorID,
		CreatedAt:      g.CreatedAt,
		ReviewedCount:  reviewedCount,
	}
	if start, end, ok := g.Selection.Range(); ok {
		resp.ItemStart = start
		resp.ItemEnd = end
	} else {
		resp.ItemIDs = g.Selection.IDs()
	}
	return resp
}

func listGrantsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		datasetID, err := strconv.Atoi(chi.URLParam(r, "datasetID"))
		if err != nil || datasetID <= 0 {
			http.Error(w, "invalid dataset id", http.StatusBadRequest)
			return
		}

		summaries, err := svc.List(r.Context(), datasetID, claims.UserID)
		if err != nil {
			writeGrantError(w, err)
			return
		}

		out := make([]GrantResponse, 0, len(summaries))
		for _, s := range summaries {
			out = append(out, ToGrantResponse(s.Grant, s.ReviewedCount))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type recordReviewRequest struct {
	ItemID int    `json:"item_id"`
	Action string `json:"action"`
}

type reviewResponse struct {
	ID        string    `json:"id"`
	ItemID    int       `json:"item_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// Registro consultivo: lo dispara el cliente externo tras cada acción.
// No requiere usuario interno; el código mismo es la referencia.
func recordReviewHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		rec, err := svc.RecordReview(r.Context(), chi.URLParam(r, "code"), req.ItemID, req.Action)
		if err != nil {
			writeGrantError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reviewResponse{
			ID:        rec.ID,
			ItemID:    rec.ItemID,
			Action:    rec.Action,
			CreatedAt: rec.CreatedAt,
		})
	}
}

func listReviewsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		recs, err := svc.ListReviews(r.Context(), chi.URLParam(r, "code"), claims.UserID)
		if err != nil {
			writeGrantError(w, err)
			return
		}

		out := make([]reviewResponse, 0, len(recs))
		for _, rec := range recs {
			out = append(out, reviewResponse{
				ID:        rec.ID,
				ItemID:    rec.ItemID,
				Action:    rec.Action,
				CreatedAt: rec.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeGrantError(w http.ResponseWriter, err error) {
	switch err {
	case ErrInvalidInput:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case ErrNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case ErrPermissionDenied:
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON está duplicado a propósito en los handlers de cada módulo
// para no crear helpers compartidos antes de tiempo.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
