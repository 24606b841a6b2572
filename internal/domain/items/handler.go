package items

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dataset-review/internal/domain/selection"
	"dataset-review/internal/middleware"
	"dataset-review/internal/ports/auth"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registra el acceso interno a ítems (usuarios autenticados).
// El acceso externo por session_token vive en el handler de sessions.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/datasets/{datasetID}/items/{seq}", func(ir chi.Router) {
		ir.Get("/", getItemHandler(svc))
		ir.Patch("/", updateContentHandler(svc))
		ir.Post("/approve", reviewActionHandler(svc, "approve"))
		ir.Post("/reject", reviewActionHandler(svc, "reject"))
		ir.Post("/mark", setMarkedHandler(svc))
	})
}

type itemResponse struct {
	ID              int        `json:"id"`
	DatasetID       int        `json:"dataset_id"`
	SeqNum          int        `json:"seq_num"`
	OriginalContent string     `json:"original_content"`
	CurrentContent  string     `json:"current_content"`
	Status          Status     `json:"status"`
	IsMarked        bool       `json:"is_marked"`
	HasChanges      bool       `json:"has_changes"`
	ReviewedBy      string     `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
}

func toItemResponse(it Item) itemResponse {
	return itemResponse{
		ID:              it.ID,
		DatasetID:       it.DatasetID,
		SeqNum:          it.SeqNum,
		OriginalContent: it.OriginalContent,
		CurrentContent:  it.CurrentContent,
		Status:          it.Status,
		IsMarked:        it.IsMarked,
		HasChanges:      it.HasChanges(),
		ReviewedBy:      it.ReviewedBy,
		ReviewedAt:      it.ReviewedAt,
	}
}

func getItemHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		datasetID, ref, ok := parseItemPath(w, r)
		if !ok {
			return
		}
		if _, authorized := requireUser(w, r); !authorized {
			return
		}

		it, err := svc.Get(r.Context(), datasetID, ref)
		if err != nil {
			http.Error(w, "item not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, toItemResponse(it))
	}
}

func reviewActionHandler(svc *Service, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		datasetID, ref, ok := parseItemPath(w, r)
		if !ok {
			return
		}
		claims, authorized := requireUser(w, r)
		if !authorized {
			return
		}

		var (
			it  Item
			err error
		)
		if action == "approve" {
			it, err = svc.Approve(r.Context(), datasetID, ref, claims.UserID)
		} else {
			it, err = svc.Reject(r.Context(), datasetID, ref, claims.UserID)
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toItemResponse(it))
	}
}

type updateContentRequest struct {
	Content string `json:"content"`
}

func updateContentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		datasetID, ref, ok := parseItemPath(w, r)
		if !ok {
			return
		}
		claims, authorized := requireUser(w, r)
		if !authorized {
			return
		}

		var req updateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		it, err := svc.UpdateContent(r.Context(), datasetID, ref, req.Content, claims.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toItemResponse(it))
	}
}

type setMarkedRequest struct {
	Marked bool `json:"marked"`
}

func setMarkedHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		datasetID, ref, ok := parseItemPath(w, r)
		if !ok {
			return
		}
		if _, authorized := requireUser(w, r); !authorized {
			return
		}

		var req setMarkedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		it, err := svc.SetMarked(r.Context(), datasetID, ref, req.Marked)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toItemResponse(it))
	}
}

func parseItemPath(w http.ResponseWriter, r *http.Request) (int, selection.ItemRef, bool) {
	datasetID, err := strconv.Atoi(chi.URLParam(r, "datasetID"))
	if err != nil || datasetID <= 0 {
		http.Error(w, "invalid dataset id", http.StatusBadRequest)
		return 0, selection.ItemRef{}, false
	}
	seq, err := strconv.Atoi(chi.URLParam(r, "seq"))
	if err != nil || seq <= 0 {
		http.Error(w, "invalid seq", http.StatusBadRequest)
		return 0, selection.ItemRef{}, false
	}
	return datasetID, selection.ItemRef{Kind: selection.KindRange, Seq: seq}, true
}

func requireUser(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Claims{}, false
	}
	return claims, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch err {
	case ErrInvalidInput:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case ErrNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
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
