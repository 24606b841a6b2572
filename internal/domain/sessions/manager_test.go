package sessions_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mem "dataset-review/internal/adapters/storage/memory"
	"dataset-review/internal/domain/grants"
	"dataset-review/internal/domain/selection"
	"dataset-review/internal/domain/sessions"
	"dataset-review/internal/platform/logger"
)

type testEnv struct {
	grants *mem.GrantsRepo
	mgr    *sessions.Manager

	mu  sync.Mutex
	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		grants: mem.NewGrantsRepo(),
		now:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	env.mgr = sessions.NewManager(
		mem.NewSessionsRepo(env.grants),
		env.grants,
		logger.New(logger.Options{Level: logger.Error}),
		sessions.Config{
			IdleTimeout:   15 * time.Minute,
			SweepInterval: time.Minute,
			Now:           env.clock,
		},
	)
	return env
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func (e *testEnv) seedGrant(t *testing.T, code string, maxOnline, maxVerify int) grants.Grant {
	t.Helper()

	sel, err := selection.NewRange(1, 10)
	if err != nil {
		t.Fatalf("NewRange: %v", err)
	}
	g := grants.Grant{
		ID:             "grant-" + code,
		Code:           code,
		DatasetID:      1,
		Selection:      sel,
		Permission:     grants.PermissionEdit,
		MaxOnline:      maxOnline,
		MaxVerifyCount: maxVerify,
		Active:         true,
		CreatorID:      "owner-1",
		CreatedAt:      e.clock(),
	}
	if err := e.grants.Create(context.Background(), g); err != nil {
		t.Fatalf("seed grant: %v", err)
	}
	return g
}

func (e *testEnv) grantByID(t *testing.T, id string) grants.Grant {
	t.Helper()
	g, err := e.grants.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return g
}

func TestVerifyConcurrentNeverExceedsCapacity(t *testing.T) {
	env := newTestEnv(t)
	g := env.seedGrant(t, "111111", 3, 100)

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := env.mgr.Verify(context.Background(), "111111", sessions.ClientInfo{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for err := range results {
		if err == nil {
			admitted++
			continue
		}
		if !errors.Is(err, grants.ErrCapacityExceeded) {
			t.Fatalf("rechazo inesperado: %v", err)
		}
	}
	if admitted != 3 {
		t.Fatalf("admitted = %d, esperaba 3", admitted)
	}

	got := env.grantByID(t, g.ID)
	if got.CurrentOnline != 3 || got.VerifyCount != 3 {
		t.Fatalf("contadores: online=%d verify=%d", got.CurrentOnline, got.VerifyCount)
	}
}

func TestVerifyRejections(t *testing.T) {
	env := newTestEnv(t)

	// código que nunca existió
	if _, _, err := env.mgr.Verify(context.Background(), "000000", sessions.ClientInfo{}); !errors.Is(err, grants.ErrNotFound) {
		t.Fatalf("err = %v, esperaba ErrNotFound", err)
	}

	// revocado
	g := env.seedGrant(t, "222222", 1, 10)
	if err := env.grants.SetActive(context.Background(), g.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if _, _, err := env.mgr.Verify(context.Background(), "222222", sessions.ClientInfo{}); !errors.Is(err, grants.ErrRevoked) {
		t.Fatalf("err = %v, esperaba ErrRevoked", err)
	}

	// vencido: el rechazo no consume verificaciones ni capacidad
	sel, _ := selection.NewRange(1, 5)
	exp := env.clock().Add(-time.Minute)
	if err := env.grants.Create(context.Background(), grants.Grant{
		ID: "g-exp", Code: "444444", DatasetID: 1, Selection: sel,
		Permission: grants.PermissionView, MaxOnline: 1, MaxVerifyCount: 5,
		ExpiresAt: &exp, Active: true, CreatorID: "owner-1", CreatedAt: env.clock(),
	}); err != nil {
		t.Fatalf("seed grant vencido: %v", err)
	}
	if _, _, err := env.mgr.Verify(context.Background(), "444444", sessions.ClientInfo{}); !errors.Is(err, grants.ErrExpired) {
		t.Fatalf("err = %v, esperaba ErrExpired", err)
	}
	g2 := env.grantByID(t, "g-exp")
	if g2.VerifyCount != 0 || g2.CurrentOnline != 0 {
		t.Fatalf("un rechazo no debe mover contadores: %+v", g2)
	}
}

// Ciclo completo con max_online=1 y max_verify_count=2: la capacidad se
// recupera al liberar, el cupo de verificaciones no.
func TestCapacityLifecycle(t *testing.T) {
	env := newTestEnv(t)
	g := env.seedGrant(t, "555555", 1, 2)

	sA, _, err := env.mgr.Verify(context.Background(), "555555", sessions.ClientInfo{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Verify A: %v", err)
	}
	if len(sA.Token) != 64 {
		t.Fatalf("token de %d chars, esperaba 64", len(sA.Token))
	}

	// lleno: B rebota sin consumir verificación
	if _, _, err := env.mgr.Verify(context.Background(), "555555", sessions.ClientInfo{}); !errors.Is(err, grants.ErrCapacityExceeded) {
		t.Fatalf("Verify B: err = %v, esperaba ErrCapacityExceeded", err)
	}
	if got := env.grantByID(t, g.ID); got.VerifyCount != 1 {
		t.Fatalf("verify_count = %d tras rechazo, esperaba 1", got.VerifyCount)
	}

	// A se va; B entra con la segunda y última verificación
	if st, err := env.mgr.Leave(context.Background(), sA.Token); err != nil || st != sessions.Released {
		t.Fatalf("Leave A: st=%s err=%v", st, err)
	}
	sB, _, err := env.mgr.Verify(context.Background(), "555555", sessions.ClientInfo{})
	if err != nil {
		t.Fatalf("Verify B reintento: %v", err)
	}

	// cupo de verificaciones agotado aunque haya lugar
	if st, err := env.mgr.Leave(context.Background(), sB.Token); err != nil || st != sessions.Released {
		t.Fatalf("Leave B: st=%s err=%v", st, err)
	}
	if _, _, err := env.mgr.Verify(context.Background(), "555555", sessions.ClientInfo{}); !errors.Is(err, grants.ErrVerifyLimitExceeded) {
		t.Fatalf("Verify C: err = %v, esperaba ErrVerifyLimitExceeded", err)
	}

	got := env.grantByID(t, g.ID)
	if got.CurrentOnline != 0 || got.VerifyCount != 2 {
		t.Fatalf("contadores finales: online=%d verify=%d", got.CurrentOnline, got.VerifyCount)
	}
}

func TestLeaveIdempotent(t *testing.T) {
	env := newTestEnv(t)
	g := env.seedGrant(t, "666666", 2, 10)

	s, _, err := env.mgr.Verify(context.Background(), "666666", sessions.ClientInfo{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if st, err := env.mgr.Leave(context.Background(), s.Token); err != nil || st != sessions.Released {
		t.Fatalf("primer Leave: st=%s err=%v", st, err)
	}
	if st, err := env.mgr.Leave(context.Background(), s.Token); err != nil || st != sessions.AlreadyReleased {
		t.Fatalf("segundo Leave: st=%s err=%v", st, err)
	}

	got := env.grantByID(t, g.ID)
	if got.CurrentOnline != 0 {
		t.Fatalf("current_online = %d, el doble leave no puede descontar dos veces", got.CurrentOnline)
	}

	// token desconocido
	if _, err := env.mgr.Leave(context.Background(), "no-such-token"); !errors.Is(err, sessions.ErrNotFound) {
		t.Fatalf("err = %v, esperaba ErrNotFound", err)
	}
}

func TestAuthorizeSurvivesRevocation(t *testing.T) {
	env := newTestEnv(t)
	g := env.seedGrant(t, "777777", 1, 5)

	s, _, err := env.mgr.Verify(context.Background(), "777777", sessions.ClientInfo{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// revocar no corta la sesión viva: la revisión en curso termina en paz
	if err := env.grants.SetActive(context.Background(), g.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if _, _, err := env.mgr.Authorize(context.Background(), s.Token); err != nil {
		t.Fatalf("Authorize tras revocación: %v", err)
	}

	// pero una sesión liberada sí está cerrada
	if _, err := env.mgr.Leave(context.Background(), s.Token); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if _, _, err := env.mgr.Authorize(context.Background(), s.Token); !errors.Is(err, sessions.ErrClosed) {
		t.Fatalf("err = %v, esperaba ErrClosed", err)
	}
}

func TestSweepReleasesIdleSessions(t *testing.T) {
	env := newTestEnv(t)
	g := env.seedGrant(t, "888888", 1, 10)

	s, _, err := env.mgr.Verify(context.Background(), "888888", sessions.ClientInfo{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// todavía activa: el barrido no la toca
	env.advance(5 * time.Minute)
	if n, err := env.mgr.Sweep(context.Background()); err != nil || n != 0 {
		t.Fatalf("Sweep temprano: n=%d err=%v", n, err)
	}

	// pasado el umbral de inactividad, libera el slot
	env.advance(11 * time.Minute)
	n, err := env.mgr.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept = %d, esperaba 1", n)
	}

	got := env.grantByID(t, g.ID)
	if got.CurrentOnline != 0 {
		t.Fatalf("current_online = %d tras barrido", got.CurrentOnline)
	}

	// la sesión barrida queda cerrada y otro Verify puede entrar
	if _, _, err := env.mgr.Authorize(context.Background(), s.Token); !errors.Is(err, sessions.ErrClosed) {
		t.Fatalf("err = %v, esperaba ErrClosed", err)
	}
	if _, _, err := env.mgr.Verify(context.Background(), "888888", sessions.ClientInfo{}); err != nil {
		t.Fatalf("Verify tras barrido: %v", err)
	}
}

// Authorize renueva la actividad: una sesión usada no se barre.
func TestAuthorizeRefreshesActivity(t *testing.T) {
	env := newTestEnv(t)
	env.seedGrant(t, "999999", 1, 10)

	s, _, err := env.mgr.Verify(context.Background(), "999999", sessions.ClientInfo{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	env.advance(10 * time.Minute)
	if _, _, err := env.mgr.Authorize(context.Background(), s.Token); err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	env.advance(10 * time.Minute)
	if n, err := env.mgr.Sweep(context.Background()); err != nil || n != 0 {
		t.Fatalf("la sesión tocada no debería barrerse: n=%d err=%v", n, err)
	}
}
