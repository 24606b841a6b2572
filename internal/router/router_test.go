package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	mem "dataset-review/internal/adapters/storage/memory"
	"dataset-review/internal/domain/items"
	"dataset-review/internal/router"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	itemsRepo := mem.NewItemsRepo()
	seed := make([]items.Item, 0, 10)
	for i := 1; i <= 10; i++ {
		seed = append(seed, items.Item{
			ID:              200 + i,
			DatasetID:       1,
			SeqNum:          i,
			OriginalContent: "fila original",
			CurrentContent:  "fila original",
			Status:          items.StatusPending,
		})
	}
	itemsRepo.Seed(seed...)

	h, _ := router.NewRouter(router.Options{ItemsRepo: itemsRepo})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func TestHTTP_EndToEnd_ExternalReviewFlow(t *testing.T) {
	ts := newTestServer(t)
	ownerID := "owner-1"

	// 1) Sin usuario no se pueden emitir códigos
	{
		st, _ := doReq(t, ts.URL, "POST", "/datasets/1/auth-codes", "", map[string]any{
			"item_start": 1, "item_end": 5, "max_online": 1, "max_verify_count": 2,
		})
		if st != http.StatusUnauthorized {
			t.Fatalf("expected 401 without user, got %d", st)
		}
	}

	// 2) Owner emite un código sobre las primeras 5 filas
	code, grantID := createCode(t, ts.URL, ownerID, map[string]any{
		"item_start":       1,
		"item_end":         5,
		"permission":       "edit",
		"max_online":       1,
		"max_verify_count": 2,
	})

	// 3) El colaborador verifica y recibe su sesión
	token := verifyOK(t, ts.URL, code, 5)

	// 4) Con el cupo en línea lleno, otro verify rebota con razón concreta
	{
		body := verifyRejected(t, ts.URL, code)
		if body.Reason != "online capacity exceeded" {
			t.Fatalf("reason = %q", body.Reason)
		}
	}

	// 5) El colaborador trabaja por posición lógica 1..5
	{
		st, body := doReq(t, ts.URL, "GET", "/session/items/1?session_token="+token, "", nil)
		if st != http.StatusOK {
			t.Fatalf("get item: %d body=%s", st, string(body))
		}
		var item struct {
			Position int `json:"position"`
			SeqNum   int `json:"seq_num"`
			Count    int `json:"item_count"`
		}
		_ = json.Unmarshal(body, &item)
		if item.Position != 1 || item.SeqNum != 1 || item.Count != 5 {
			t.Fatalf("item: %+v", item)
		}
	}
	{
		st, body := doReq(t, ts.URL, "POST", "/session/items/2/approve?session_token="+token, "", nil)
		if st != http.StatusOK {
			t.Fatalf("approve: %d body=%s", st, string(body))
		}
	}
	{
		st, body := doReq(t, ts.URL, "PATCH", "/session/items/3?session_token="+token, "", map[string]any{
			"content": "fila corregida",
		})
		if st != http.StatusOK {
			t.Fatalf("patch: %d body=%s", st, string(body))
		}
	}

	// 6) Posición fuera del subconjunto: error, jamás se recorta
	{
		st, _ := doReq(t, ts.URL, "GET", "/session/items/6?session_token="+token, "", nil)
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 out of range, got %d", st)
		}
	}

	// 7) El colaborador reporta su auditoría y el owner la consulta
	{
		st, body := doReq(t, ts.URL, "POST", "/auth-codes/"+code+"/record-review", "", map[string]any{
			"item_id": 202, "action": "approve",
		})
		if st != http.StatusOK {
			t.Fatalf("record-review: %d body=%s", st, string(body))
		}
		st, body = doReq(t, ts.URL, "GET", "/auth-codes/"+code+"/reviewed", ownerID, nil)
		if st != http.StatusOK {
			t.Fatalf("reviewed: %d body=%s", st, string(body))
		}
		var recs []struct {
			ItemID int `json:"item_id"`
		}
		_ = json.Unmarshal(body, &recs)
		if len(recs) != 1 || recs[0].ItemID != 202 {
			t.Fatalf("auditoría: %+v", recs)
		}
	}

	// 8) El owner ve avance y contadores en vivo
	{
		st, body := doReq(t, ts.URL, "GET", "/datasets/1/progress?item_start=1&item_end=5", ownerID, nil)
		if st != http.StatusOK {
			t.Fatalf("progress: %d body=%s", st, string(body))
		}
		var sum struct {
			Total    int `json:"total"`
			Pending  int `json:"pending"`
			Approved int `json:"approved"`
			Modified int `json:"modified"`
		}
		_ = json.Unmarshal(body, &sum)
		if sum.Total != 5 || sum.Pending != 3 || sum.Approved != 1 || sum.Modified != 1 {
			t.Fatalf("summary: %+v", sum)
		}
	}
	{
		st, body := doReq(t, ts.URL, "GET", "/datasets/1/auth-codes", ownerID, nil)
		if st != http.StatusOK {
			t.Fatalf("list codes: %d body=%s", st, string(body))
		}
		var codes []struct {
			CurrentOnline int `json:"current_online"`
			VerifyCount   int `json:"verify_count"`
			ReviewedCount int `json:"reviewed_count"`
		}
		_ = json.Unmarshal(body, &codes)
		if len(codes) != 1 || codes[0].CurrentOnline != 1 || codes[0].VerifyCount != 1 || codes[0].ReviewedCount != 2 {
			t.Fatalf("codes: %+v", codes)
		}
	}

	// 9) Leave libera el slot; la segunda verificación entra
	{
		st, body := doReq(t, ts.URL, "POST", "/auth-codes/session/leave", "", map[string]any{
			"session_token": token,
		})
		if st != http.StatusOK {
			t.Fatalf("leave: %d body=%s", st, string(body))
		}
	}
	token2 := verifyOK(t, ts.URL, code, 5)

	// 10) Cupo de verificaciones agotado, aunque haya lugar
	{
		st, _ := doReq(t, ts.URL, "POST", "/auth-codes/session/leave?session_token="+token2, "", nil)
		if st != http.StatusOK {
			t.Fatalf("leave 2: %d", st)
		}
		body := verifyRejected(t, ts.URL, code)
		if body.Reason != "verify limit exceeded" {
			t.Fatalf("reason = %q", body.Reason)
		}
	}

	// 11) Revocar gana a cualquier otra razón de rechazo
	{
		st, body := doReq(t, ts.URL, "DELETE", "/datasets/1/auth-codes/"+grantID, ownerID, nil)
		if st != http.StatusOK {
			t.Fatalf("revoke: %d body=%s", st, string(body))
		}
		rej := verifyRejected(t, ts.URL, code)
		if rej.Reason != "authorization code revoked" {
			t.Fatalf("reason = %q", rej.Reason)
		}
	}
}

func TestHTTP_ViewPermissionCannotWrite(t *testing.T) {
	ts := newTestServer(t)

	code, _ := createCode(t, ts.URL, "owner-1", map[string]any{
		"item_ids":         []int{203, 201, 205},
		"permission":       "view",
		"max_online":       2,
		"max_verify_count": 5,
	})
	token := verifyOK(t, ts.URL, code, 3)

	// la posición 1 del id-set es el id 203
	{
		st, body := doReq(t, ts.URL, "GET", "/session/items/1?session_token="+token, "", nil)
		if st != http.StatusOK {
			t.Fatalf("get: %d body=%s", st, string(body))
		}
		var item struct {
			ID int `json:"id"`
		}
		_ = json.Unmarshal(body, &item)
		if item.ID != 203 {
			t.Fatalf("id = %d, esperaba 203", item.ID)
		}
	}

	st, _ := doReq(t, ts.URL, "POST", "/session/items/1/approve?session_token="+token, "", nil)
	if st != http.StatusForbidden {
		t.Fatalf("expected 403 approve with view permission, got %d", st)
	}
}

func TestHTTP_InternalTaskLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ownerID := "owner-1"
	workerID := "worker-1"

	// owner delega un rango como tarea interna
	var taskID string
	{
		st, body := doReq(t, ts.URL, "POST", "/tasks", ownerID, map[string]any{
			"dataset_id":  1,
			"assignee_id": workerID,
			"item_start":  6,
			"item_end":    8,
			"priority":    1,
			"note":        "revisar el lote final",
		})
		if st != http.StatusCreated {
			t.Fatalf("create task: %d body=%s", st, string(body))
		}
		var resp struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.ID == "" || resp.Status != "pending" {
			t.Fatalf("task: %+v", resp)
		}
		taskID = resp.ID
	}

	// el worker la ve en su lista
	{
		st, body := doReq(t, ts.URL, "GET", "/tasks/my", workerID, nil)
		if st != http.StatusOK {
			t.Fatalf("my tasks: %d body=%s", st, string(body))
		}
		var list []struct {
			ID         string `json:"id"`
			TotalItems int    `json:"total_items"`
		}
		_ = json.Unmarshal(body, &list)
		if len(list) != 1 || list[0].ID != taskID || list[0].TotalItems != 3 {
			t.Fatalf("list: %+v", list)
		}
	}

	// el primer toque de un ítem del rango la pasa a in_progress
	{
		st, body := doReq(t, ts.URL, "POST", "/datasets/1/items/7/approve", workerID, nil)
		if st != http.StatusOK {
			t.Fatalf("approve item: %d body=%s", st, string(body))
		}
		st, body = doReq(t, ts.URL, "GET", "/tasks/"+taskID, workerID, nil)
		if st != http.StatusOK {
			t.Fatalf("get task: %d body=%s", st, string(body))
		}
		var resp struct {
			Status        string `json:"status"`
			ReviewedItems int    `json:"reviewed_items"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.Status != "in_progress" || resp.ReviewedItems != 1 {
			t.Fatalf("task: %+v", resp)
		}
	}

	// completar es del assignee; acknowledge del assigner
	{
		st, _ := doReq(t, ts.URL, "POST", "/tasks/"+taskID+"/complete", ownerID, nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 complete by assigner, got %d", st)
		}
		st, body := doReq(t, ts.URL, "POST", "/tasks/"+taskID+"/complete", workerID, nil)
		if st != http.StatusOK {
			t.Fatalf("complete: %d body=%s", st, string(body))
		}
		st, body = doReq(t, ts.URL, "POST", "/tasks/"+taskID+"/acknowledge", ownerID, nil)
		if st != http.StatusOK {
			t.Fatalf("acknowledge: %d body=%s", st, string(body))
		}
		var resp struct {
			ReviewedByAssigner bool `json:"reviewed_by_assigner"`
		}
		_ = json.Unmarshal(body, &resp)
		if !resp.ReviewedByAssigner {
			t.Fatal("acknowledge no quedó registrado")
		}
	}

	// el reporte del owner junta todo lo delegado del dataset
	{
		st, body := doReq(t, ts.URL, "GET", "/datasets/1/delegation-report", ownerID, nil)
		if st != http.StatusOK {
			t.Fatalf("report: %d body=%s", st, string(body))
		}
		var rep struct {
			Tasks []struct {
				ID string `json:"id"`
			} `json:"tasks"`
		}
		_ = json.Unmarshal(body, &rep)
		if len(rep.Tasks) != 1 || rep.Tasks[0].ID != taskID {
			t.Fatalf("report: %+v", rep)
		}
	}
}

func TestHTTP_CreateCodeRejectsForeignIDs(t *testing.T) {
	ts := newTestServer(t)

	st, _ := doReq(t, ts.URL, "POST", "/datasets/1/auth-codes", "owner-1", map[string]any{
		"item_ids":         []int{201, 999},
		"max_online":       1,
		"max_verify_count": 1,
	})
	if st != http.StatusBadRequest {
		t.Fatalf("expected 400 for foreign ids, got %d", st)
	}
}

func createCode(t *testing.T, baseURL, userID string, payload map[string]any) (code, id string) {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/datasets/1/auth-codes", userID, payload)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create code, got %d body=%s", st, string(body))
	}

	var resp struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	_ = json.Unmarshal(body, &resp)
	if resp.ID == "" || len(resp.Code) != 6 {
		t.Fatalf("create code: body=%s", string(body))
	}
	return resp.Code, resp.ID
}

type verifyBody struct {
	Valid        bool   `json:"valid"`
	Reason       string `json:"reason"`
	SessionToken string `json:"session_token"`
	ItemCount    int    `json:"item_count"`
}

func verifyOK(t *testing.T, baseURL, code string, wantCount int) string {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/auth-codes/"+code+"/verify", "", nil)
	if st != http.StatusOK {
		t.Fatalf("verify: %d body=%s", st, string(body))
	}
	var resp verifyBody
	_ = json.Unmarshal(body, &resp)
	if !resp.Valid || len(resp.SessionToken) != 64 || resp.ItemCount != wantCount {
		t.Fatalf("verify: %+v", resp)
	}
	return resp.SessionToken
}

func verifyRejected(t *testing.T, baseURL, code string) verifyBody {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/auth-codes/"+code+"/verify", "", nil)
	if st != http.StatusOK {
		t.Fatalf("verify rechazado debe ser 200, got %d body=%s", st, string(body))
	}
	var resp verifyBody
	_ = json.Unmarshal(body, &resp)
	if resp.Valid {
		t.Fatalf("verify debería rebotar: %+v", resp)
	}
	return resp
}

func doReq(t *testing.T, baseURL, method, path, debugUserID string, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if debugUserID != "" {
		req.Header.Set("X-Debug-User-ID", debugUserID)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, respBody
}
