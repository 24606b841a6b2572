package sessions

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"dataset-review/internal/domain/grants"
	"dataset-review/internal/domain/items"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registra el flujo del colaborador externo: verificar un
// código, trabajar los ítems por posición lógica y abandonar la sesión.
func RegisterRoutes(r chi.Router, mgr *Manager, itemsSvc *items.Service) {
	r.Post("/auth-codes/{code}/verify", verifyHandler(mgr))
	r.Post("/auth-codes/session/leave", leaveHandler(mgr))

	r.Route("/session/items/{position}", func(sr chi.Router) {
		sr.Get("/", sessionItemHandler(mgr, itemsSvc, actionGet))
		sr.Patch("/", sessionItemHandler(mgr, itemsSvc, actionUpdate))
		sr.Post("/approve", sessionItemHandler(mgr, itemsSvc, actionApprove))
		sr.Post("/reject", sessionItemHandler(mgr, itemsSvc, actionReject))
		sr.Post("/mark", sessionItemHandler(mgr, itemsSvc, actionMark))
	})
}

type verifyResponse struct {
	Valid        bool              `json:"valid"`
	Reason       string            `json:"reason,omitempty"`
	SessionToken string            `json:"session_token,omitempty"`
	DatasetID    int               `json:"dataset_id,omitempty"`
	ItemStart    int               `json:"item_start,omitempty"`
	ItemEnd      int               `json:"item_end,omitempty"`
	ItemIDs      []int             `json:"item_ids,omitempty"`
	ItemCount    int               `json:"item_count,omitempty"`
	Permission   grants.Permission `json:"permission,omitempty"`
}

// Un Verify rechazado responde 200 con valid=false y una razón concreta:
// la UI distingue "nunca existió", "vencido", "revocado", "lleno" y
// "agotado". Un rechazo por capacidad se puede reintentar sin efectos.
func verifyHandler(mgr *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := ClientInfo{
			IP:        r.RemoteAddr,
			UserAgent: r.UserAgent(),
		}

		s, g, err := mgr.Verify(r.Context(), chi.URLParam(r, "code"), client)
		if err != nil {
			reason, known := verifyReason(err)
			if !known {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, verifyResponse{Valid: false, Reason: reason})
			return
		}

		resp := verifyResponse{
			Valid:        true,
			SessionToken: s.Token,
			DatasetID:    g.DatasetID,
			ItemCount:    g.Selection.Count(),
			Permission:   g.Permission,
		}
		if start, end, ok := g.Selection.Range(); ok {
			resp.ItemStart = start
			resp.ItemEnd = end
		} else {
			resp.ItemIDs = g.Selection.IDs()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func verifyReason(err error) (string, bool) {
	switch {
	case errors.Is(err, grants.ErrNotFound),
		errors.Is(err, grants.ErrRevoked),
		errors.Is(err, grants.ErrExpired),
		errors.Is(err, grants.ErrVerifyLimitExceeded),
		errors.Is(err, grants.ErrCapacityExceeded):
		return err.Error(), true
	}
	return "", false
}

type leaveRequest struct {
	SessionToken string `json:"session_token"`
}

// leave tolera clientes rotos: token por query o por body JSON
// (sendBeacon), y sin token o con token desconocido responde 200 con un
// mensaje inofensivo para no romper flujos de unload.
func leaveHandler(mgr *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.URL.Query().Get("session_token"))
		if token == "" {
			var req leaveRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
				token = strings.TrimSpace(req.SessionToken)
			}
		}
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]string{"message": "no session_token provided"})
			return
		}

		st, err := mgr.Leave(r.Context(), token)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				writeJSON(w, http.StatusOK, map[string]string{"message": "session not found"})
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": string(st)})
	}
}

type sessionAction string

const (
	actionGet     sessionAction = "get"
	actionUpdate  sessionAction = "update"
	actionApprove sessionAction = "approve"
	actionReject  sessionAction = "reject"
	actionMark    sessionAction = "mark"
)

type sessionItemRequest struct {
	Content string `json:"content"`
	Marked  bool   `json:"marked"`
}

type sessionItemResponse struct {
	Position   int          `json:"position"`
	ItemCount  int          `json:"item_count"`
	ID         int          `json:"id"`
	SeqNum     int          `json:"seq_num"`
	Content    string       `json:"content"`
	Status     items.Status `json:"status"`
	IsMarked   bool         `json:"is_marked"`
	HasChanges bool         `json:"has_changes"`
}

// sessionItemHandler resuelve posición lógica -> ítem a través de la
// selección del grant, para que el cliente externo nunca vea seq nums ni
// ids reales fuera de su subconjunto.
func sessionItemHandler(mgr *Manager, itemsSvc *items.Service, action sessionAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			http.Error(w, "session_token required", http.StatusUnauthorized)
			return
		}

		_, g, err := mgr.Authorize(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound), errors.Is(err, ErrClosed):
				http.Error(w, err.Error(), http.StatusUnauthorized)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		position, err := strconv.Atoi(chi.URLParam(r, "position"))
		if err != nil {
			http.Error(w, "invalid position", http.StatusBadRequest)
			return
		}

		ref, err := g.Selection.Resolve(position)
		if err != nil {
			// fuera de rango: error de borde, jamás se recorta
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if action != actionGet && !g.Permission.CanWrite() {
			http.Error(w, grants.ErrPermissionDenied.Error(), http.StatusForbidden)
			return
		}

		var req sessionItemRequest
		if action == actionUpdate || action == actionMark {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
		}

		var it items.Item
		switch action {
		case actionGet:
			it, err = itemsSvc.Get(r.Context(), g.DatasetID, ref)
		case actionApprove:
			it, err = itemsSvc.Approve(r.Context(), g.DatasetID, ref, g.CreatorID)
		case actionReject:
			it, err = itemsSvc.Reject(r.Context(), g.DatasetID, ref, g.CreatorID)
		case actionUpdate:
			it, err = itemsSvc.UpdateContent(r.Context(), g.DatasetID, ref, req.Content, g.CreatorID)
		case actionMark:
			it, err = itemsSvc.SetMarked(r.Context(), g.DatasetID, ref, req.Marked)
		}
		if err != nil {
			switch err {
			case items.ErrInvalidInput:
				http.Error(w, err.Error(), http.StatusBadRequest)
			case items.ErrNotFound:
				http.Error(w, err.Error(), http.StatusNotFound)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, sessionItemResponse{
			Position:   position,
			ItemCount:  g.Selection.Count(),
			ID:         it.ID,
			SeqNum:     it.SeqNum,
			Content:    it.CurrentContent,
			Status:     it.Status,
			IsMarked:   it.IsMarked,
			HasChanges: it.HasChanges(),
		})
	}
}

func sessionToken(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("session_token")); t != "" {
		return t
	}
	return strings.TrimSpace(r.Header.Get("X-Session-Token"))
}

// writeJSON está duplicado a propósito en los handlers de cada módulo
// para no crear helpers compartidos antes de tiempo.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
