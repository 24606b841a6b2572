package progress

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"dataset-review/internal/domain/selection"
	"dataset-review/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes expone los agregados de avance al revisor delegante.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/datasets/{datasetID}/progress", func(pr chi.Router) {
		pr.Get("/", summarizeHandler(svc))
		pr.Get("/next", firstMatchingHandler(svc))
	})
}

func summarizeHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		datasetID, sel, ok := parseSelectionQuery(w, r)
		if !ok {
			return
		}

		sum, err := svc.Summarize(r.Context(), datasetID, sel)
		if err != nil {
			if err == ErrInvalidInput {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

type nextResponse struct {
	Position int  `json:"position"`
	Found    bool `json:"found"`
}

// "saltar al siguiente pendiente / marcado" para la navegación del revisor.
func firstMatchingHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		datasetID, sel, ok := parseSelectionQuery(w, r)
		if !ok {
			return
		}

		var pred Predicate
		switch strings.TrimSpace(r.URL.Query().Get("match")) {
		case "pending", "":
			pred = IsPending
		case "marked":
			pred = IsMarked
		default:
			http.Error(w, "match must be pending or marked", http.StatusBadRequest)
			return
		}

		pos, found, err := svc.FirstMatching(r.Context(), datasetID, sel, pred)
		if err != nil {
			if err == ErrInvalidInput {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, nextResponse{Position: pos, Found: found})
	}
}

// parseSelectionQuery arma la selección desde query params:
// item_ids=1,2,3 (prioridad) o item_start + item_end.
func parseSelectionQuery(w http.ResponseWriter, r *http.Request) (int, selection.Selection, bool) {
	datasetID, err := strconv.Atoi(chi.URLParam(r, "datasetID"))
	if err != nil || datasetID <= 0 {
		http.Error(w, "invalid dataset id", http.StatusBadRequest)
		return 0, selection.Selection{}, false
	}

	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("item_ids")); raw != "" {
		parts := strings.Split(raw, ",")
		ids := make([]int, 0, len(parts))
		for _, p := range parts {
			id, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				http.Error(w, "invalid item_ids", http.StatusBadRequest)
				return 0, selection.Selection{}, false
			}
			ids = append(ids, id)
		}
		sel, err := selection.NewIDSet(ids)
		if err != nil {
			http.Error(w, "invalid item_ids", http.StatusBadRequest)
			return 0, selection.Selection{}, false
		}
		return datasetID, sel, true
	}

	start, err1 := strconv.Atoi(strings.TrimSpace(q.Get("item_start")))
	end, err2 := strconv.Atoi(strings.TrimSpace(q.Get("item_end")))
	if err1 != nil || err2 != nil {
		http.Error(w, "item_start and item_end required", http.StatusBadRequest)
		return 0, selection.Selection{}, false
	}
	sel, err := selection.NewRange(start, end)
	if err != nil {
		http.Error(w, "invalid range", http.StatusBadRequest)
		return 0, selection.Selection{}, false
	}
	return datasetID, sel, true
}

// writeJSON está duplicado a propósito en los handlers de cada módulo
// para no crear helpers compartidos antes de tiempo.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
