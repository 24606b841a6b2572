package memory

import (
	"context"
	"testing"
	"time"

	"dataset-review/internal/domain/grants"
	"dataset-review/internal/domain/selection"
	"dataset-review/internal/domain/sessions"
)

func seedGrant(t *testing.T, r *GrantsRepo, code string) grants.Grant {
	t.Helper()

	sel, err := selection.NewRange(1, 5)
	if err != nil {
		t.Fatalf("NewRange: %v", err)
	}
	g := grants.Grant{
		ID:             "grant-" + code,
		Code:           code,
		DatasetID:      1,
		Selection:      sel,
		Permission:     grants.PermissionEdit,
		MaxOnline:      2,
		MaxVerifyCount: 10,
		Active:         true,
		CreatorID:      "owner-1",
		CreatedAt:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	if err := r.Create(context.Background(), g); err != nil {
		t.Fatalf("Create grant: %v", err)
	}
	return g
}

// Una revocación que entra entre la relectura de una admisión en vuelo y
// su escritura de contadores no debe perderse: la escritura solo toca los
// contadores, nunca Active.
func TestPutCountersPreservesConcurrentRevocation(t *testing.T) {
	repo := NewGrantsRepo()
	g := seedGrant(t, repo, "111111")

	// copia releída por una admisión antes de la revocación
	stale := g
	if err := stale.Admit(time.Now()); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	if err := repo.SetActive(context.Background(), g.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	repo.putCounters(stale)

	got, err := repo.GetByID(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Active {
		t.Fatal("la revocación se pisó con la copia vieja del grant")
	}
	if got.CurrentOnline != 1 || got.VerifyCount != 1 {
		t.Fatalf("contadores: online=%d verify=%d, esperaba 1/1", got.CurrentOnline, got.VerifyCount)
	}
}

func TestReleaseAfterRevokeKeepsGrantInactive(t *testing.T) {
	grantsRepo := NewGrantsRepo()
	sessionsRepo := NewSessionsRepo(grantsRepo)
	g := seedGrant(t, grantsRepo, "222222")

	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	s := sessions.Session{
		ID:           "sess-1",
		Token:        "tok-1",
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(24 * time.Hour),
	}
	if _, _, err := sessionsRepo.Admit(context.Background(), g.Code, s, now); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	if err := grantsRepo.SetActive(context.Background(), g.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	st, err := sessionsRepo.Release(context.Background(), "tok-1", now.Add(time.Minute))
	if err != nil || st != sessions.Released {
		t.Fatalf("Release: st=%v err=%v", st, err)
	}

	got, err := grantsRepo.GetByID(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Active {
		t.Fatal("el grant volvió a activo tras liberar la sesión")
	}
	if got.CurrentOnline != 0 {
		t.Fatalf("online = %d, esperaba 0", got.CurrentOnline)
	}
}
