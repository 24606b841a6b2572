package tasks

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"dataset-review/internal/domain/selection"
	"dataset-review/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// ProgressLookup evita importar el paquete progress (rompe ciclos).
type ProgressLookup interface {
	ReviewedCount(ctx context.Context, datasetID int, sel selection.Selection) (int, error)
}

// RegisterRoutes registra el ciclo de vida de tareas internas. La creación
// pasa por el coordinador de delegación.
func RegisterRoutes(r chi.Router, svc *Service, progress ProgressLookup) {
	r.Get("/tasks/my", listMyTasksHandler(svc, progress))
	r.Route("/tasks/{taskID}", func(tr chi.Router) {
		tr.Get("/", getTaskHandler(svc, progress))
		tr.Post("/complete", completeTaskHandler(svc))
		tr.Post("/acknowledge", acknowledgeTaskHandler(svc))
		tr.Post("/delegate", delegateTaskHandler(svc))
		tr.Get("/delegation-history", delegationHistoryHandler(svc))
	})
}

// TaskResponse es la forma pública de una tarea. Exportada porque el
// handler de delegación la reusa al crear tareas.
type TaskResponse struct {
	ID                 string     `json:"id"`
	DatasetID          int        `json:"dataset_id"`
	AssignerID         string     `json:"assigner_id"`
	AssigneeID         string     `json:"assignee_id"`
	ItemStart          int        `json:"item_start,omitempty"`
	ItemEnd            int        `json:"item_end,omitempty"`
	ItemIDs            []int      `json:"item_ids,omitempty"`
	Priority           int        `json:"priority"`
	Note               string     `json:"note,omitempty"`
	DueDate            *time.Time `json:"due_date,omitempty"`
	Status             Status     `json:"status"`
	ReviewedByAssigner bool       `json:"reviewed_by_assigner"`
	DelegatedFromID    string     `json:"delegated_from_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	TotalItems         int        `json:"total_items"`
	ReviewedItems      int        `json:"reviewed_items"`
}

func ToTaskResponse(t Task, reviewedItems int) TaskResponse {
	resp := TaskResponse{
		ID:                 t.ID,
		DatasetID:          t.DatasetID,
		AssignerID:         t.AssignerID,
		AssigneeID:         t.AssigneeID,
		Priority:           t.Priority,
		Note:               t.Note,
		DueDate:            t.DueDate,
		Status:             t.Status,
		ReviewedByAssigner: t.ReviewedByAssigner,
		DelegatedFromID:    t.DelegatedFromID,
		CreatedAt:          t.CreatedAt,
		CompletedAt:        t.CompletedAt,
		TotalItems:         t.Selection.Count(),
		ReviewedItems:      reviewedItems,
	}
	if start, end, ok := t.Selection.Range(); ok {
		resp.ItemStart = start
		resp.ItemEnd = end
	} else {
		resp.ItemIDs = t.Selection.IDs()
	}
	return resp
}

func listMyTasksHandler(svc *Service, progress ProgressLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		list, err := svc.ListByAssignee(r.Context(), claims.UserID)
		if err != nil {
			writeTaskError(w, err)
			return
		}

		// status=pending,in_progress (CSV opcional)
		allowed := parseStatusFilter(r.URL.Query().Get("status"))

		out := make([]TaskResponse, 0, len(list))
		for _, t := range list {
			if len(allowed) > 0 {
				if _, ok := allowed[t.Status]; !ok {
					continue
				}
			}
			out = append(out, ToTaskResponse(t, reviewedCount(r.Context(), progress, t)))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getTaskHandler(svc *Service, progress ProgressLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		t, err := svc.GetByID(r.Context(), chi.URLParam(r, "taskID"))
		if err != nil {
			writeTaskError(w, err)
			return
		}
		if t.AssigneeID != claims.UserID && t.AssignerID != claims.UserID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, ToTaskResponse(t, reviewedCount(r.Context(), progress, t)))
	}
}

func completeTaskHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		t, err := svc.Complete(r.Context(), chi.URLParam(r, "taskID"), claims.UserID)
		if err != nil {
			writeTaskError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ToTaskResponse(t, 0))
	}
}

func acknowledgeTaskHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		t, err := svc.Acknowledge(r.Context(), chi.URLParam(r, "taskID"), claims.UserID)
		if err != nil {
			writeTaskError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ToTaskResponse(t, 0))
	}
}

type delegateRequest struct {
	NewAssigneeID string `json:"new_assignee_id"`
	Note          string `json:"note"`
}

func delegateTaskHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req delegateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		t, err := svc.Delegate(r.Context(), chi.URLParam(r, "taskID"), claims.UserID, req.NewAssigneeID, req.Note)
		if err != nil {
			writeTaskError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ToTaskResponse(t, 0))
	}
}

func delegationHistoryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		chain, err := svc.History(r.Context(), chi.URLParam(r, "taskID"))
		if err != nil {
			writeTaskError(w, err)
			return
		}

		out := make([]TaskResponse, 0, len(chain))
		for _, t := range chain {
			out = append(out, ToTaskResponse(t, 0))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"task_id": chi.URLParam(r, "taskID"),
			"history": out,
		})
	}
}

func reviewedCount(ctx context.Context, progress ProgressLookup, t Task) int {
	if progress == nil {
		return 0
	}
	n, err := progress.ReviewedCount(ctx, t.DatasetID, t.Selection)
	if err != nil {
		return 0
	}
	return n
}

func parseStatusFilter(raw string) map[Status]struct{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[Status]struct{}{}
	for _, p := range strings.Split(raw, ",") {
		s := Status(strings.TrimSpace(p))
		if s == "" {
			continue
		}
		out[s] = struct{}{}
	}
	return out
}

func writeTaskError(w http.ResponseWriter, err error) {
	switch err {
	case ErrInvalidInput:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case ErrNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case ErrForbidden:
		http.Error(w, "forbidden", http.StatusForbidden)
	case ErrBadState:
		http.Error(w, err.Error(), http.StatusConflict)
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
