package delegation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dataset-review/internal/domain/grants"
	"dataset-review/internal/domain/selection"
	"dataset-review/internal/domain/tasks"
	"dataset-review/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registra las mutaciones de delegación: emitir y revocar
// códigos, y asignar tareas internas.
func RegisterRoutes(r chi.Router, c *Coordinator) {
	r.Post("/datasets/{datasetID}/auth-codes", createCodeHandler(c))
	r.Delete("/datasets/{datasetID}/auth-codes/{grantID}", revokeCodeHandler(c))
	r.Post("/tasks", createTaskHandler(c))
	r.Get("/datasets/{datasetID}/delegation-report", reportHandler(c))
}

// selectionBody es el fragmento común de request para elegir el
// subconjunto: ids explícitos tienen prioridad sobre el rango.
type selectionBody struct {
	ItemStart int   `json:"item_start"`
	ItemEnd   int   `json:"item_end"`
	ItemIDs   []int `json:"item_ids"`
}

func (b selectionBody) toSelection() (selection.Selection, error) {
	if len(b.ItemIDs) > 0 {
		return selection.NewIDSet(b.ItemIDs)
	}
	return selection.NewRange(b.ItemStart, b.ItemEnd)
}

type createCodeRequest struct {
	selectionBody
	Permission     string `json:"permission"`
	MaxOnline      int    `json:"max_online"`
	MaxVerifyCount int    `json:"max_verify_count"`
	ExpiresInHours int    `json:"expires_in_hours"`
}

func createCodeHandler(c *Coordinator) http.HandlerFunc {
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

		var req createCodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		sel, err := req.toSelection()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var expiresAt *time.Time
		if req.ExpiresInHours > 0 {
			e := time.Now().Add(time.Duration(req.ExpiresInHours) * time.Hour)
			expiresAt = &e
		}

		g, err := c.DelegateToCode(r.Context(), grants.CreateInput{
			DatasetID:      datasetID,
			Selection:      sel,
			Permission:     grants.Permission(req.Permission),
			MaxOnline:      req.MaxOnline,
			MaxVerifyCount: req.MaxVerifyCount,
			ExpiresAt:      expiresAt,
			CreatorID:      claims.UserID,
		})
		if err != nil {
			writeDelegationError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, grants.ToGrantResponse(g, 0))
	}
}

func revokeCodeHandler(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		g, err := c.RevokeCode(r.Context(), chi.URLParam(r, "grantID"), claims.UserID)
		if err != nil {
			writeDelegationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, grants.ToGrantResponse(g, 0))
	}
}

type createTaskRequest struct {
	selectionBody
	DatasetID  int    `json:"dataset_id"`
	AssigneeID string `json:"assignee_id"`
	Priority   int    `json:"priority"`
	Note       string `json:"note"`
	DueDate    string `json:"due_date"` // RFC3339, opcional
}

func createTaskHandler(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req createTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		sel, err := req.toSelection()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var dueDate *time.Time
		if s := strings.TrimSpace(req.DueDate); s != "" {
			d, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid due_date", http.StatusBadRequest)
				return
			}
			dueDate = &d
		}

		t, err := c.DelegateToUser(r.Context(), tasks.CreateInput{
			DatasetID:  req.DatasetID,
			AssignerID: claims.UserID,
			AssigneeID: req.AssigneeID,
			Selection:  sel,
			Priority:   req.Priority,
			Note:       req.Note,
			DueDate:    dueDate,
		})
		if err != nil {
			writeDelegationError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tasks.ToTaskResponse(t, 0))
	}
}

type reportResponse struct {
	DatasetID int                    `json:"dataset_id"`
	Codes     []grants.GrantResponse `json:"codes"`
	Tasks     []tasks.TaskResponse   `json:"tasks"`
}

func reportHandler(c *Coordinator) http.HandlerFunc {
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

		rep, err := c.Report(r.Context(), datasetID, claims.UserID)
		if err != nil {
			writeDelegationError(w, err)
			return
		}

		out := reportResponse{
			DatasetID: rep.DatasetID,
			Codes:     make([]grants.GrantResponse, 0, len(rep.Codes)),
			Tasks:     make([]tasks.TaskResponse, 0, len(rep.Tasks)),
		}
		for _, s := range rep.Codes {
			out.Codes = append(out.Codes, grants.ToGrantResponse(s.Grant, s.ReviewedCount))
		}
		for _, ts := range rep.Tasks {
			out.Tasks = append(out.Tasks, tasks.ToTaskResponse(ts.Task, ts.ReviewedItems))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeDelegationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, grants.ErrInvalidInput), errors.Is(err, tasks.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, grants.ErrNotFound), errors.Is(err, tasks.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, grants.ErrPermissionDenied), errors.Is(err, tasks.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, grants.ErrExhaustedCodespace):
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
