package items

import (
	"context"
	"errors"
	"testing"
	"time"

	"dataset-review/internal/domain/selection"
)

type testRepo struct {
	bySeq map[int]Item // dataset único en estos tests
}

func newTestRepo() *testRepo {
	r := &testRepo{bySeq: map[int]Item{}}
	for i := 1; i <= 5; i++ {
		r.bySeq[i] = Item{
			ID:              100 + i,
			DatasetID:       1,
			SeqNum:          i,
			OriginalContent: "original",
			CurrentContent:  "original",
			Status:          StatusPending,
		}
	}
	return r
}

func (r *testRepo) Get(_ context.Context, datasetID int, ref selection.ItemRef) (Item, error) {
	for _, it := range r.bySeq {
		if it.DatasetID != datasetID {
			continue
		}
		if ref.Kind == selection.KindIDSet && it.ID == ref.ID {
			return it, nil
		}
		if ref.Kind == selection.KindRange && it.SeqNum == ref.Seq {
			return it, nil
		}
	}
	return Item{}, ErrNotFound
}

func (r *testRepo) Update(_ context.Context, it Item) error {
	if _, ok := r.bySeq[it.SeqNum]; !ok {
		return ErrNotFound
	}
	r.bySeq[it.SeqNum] = it
	return nil
}

func (r *testRepo) ListBySelection(ctx context.Context, datasetID int, sel selection.Selection) ([]Item, error) {
	out := make([]Item, 0, sel.Count())
	for pos := 1; pos <= sel.Count(); pos++ {
		ref, err := sel.Resolve(pos)
		if err != nil {
			return nil, err
		}
		it, err := r.Get(ctx, datasetID, ref)
		if err != nil {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *testRepo) ListByDataset(_ context.Context, datasetID int) ([]Item, error) {
	out := make([]Item, 0)
	for i := 1; i <= len(r.bySeq); i++ {
		if it, ok := r.bySeq[i]; ok && it.DatasetID == datasetID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *testRepo) MaxSeq(_ context.Context, datasetID int) (int, error) {
	max := 0
	for _, it := range r.bySeq {
		if it.DatasetID == datasetID && it.SeqNum > max {
			max = it.SeqNum
		}
	}
	return max, nil
}

func (r *testRepo) ExistAll(_ context.Context, datasetID int, ids []int) (bool, error) {
	for _, id := range ids {
		found := false
		for _, it := range r.bySeq {
			if it.ID == id && it.DatasetID == datasetID {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

type recordingStarter struct {
	calls []selection.ItemRef
}

func (s *recordingStarter) TouchItem(_ context.Context, _ string, _ int, ref selection.ItemRef) error {
	s.calls = append(s.calls, ref)
	return nil
}

func seqRef(seq int) selection.ItemRef {
	return selection.ItemRef{Kind: selection.KindRange, Seq: seq}
}

func TestReviewStampsReviewer(t *testing.T) {
	repo := newTestRepo()
	starter := &recordingStarter{}
	svc := NewService(repo, starter)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	it, err := svc.Approve(context.Background(), 1, seqRef(2), "reviewer-1")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if it.Status != StatusApproved || it.ReviewedBy != "reviewer-1" || it.ReviewedAt == nil {
		t.Fatalf("estampa de revisión: %+v", it)
	}

	// actor vacío no revisa
	if _, err := svc.Reject(context.Background(), 1, seqRef(3), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, esperaba ErrInvalidInput", err)
	}

	// cada revisión dispara el primer toque de tareas
	if _, err := svc.Reject(context.Background(), 1, seqRef(3), "reviewer-1"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if len(starter.calls) != 2 {
		t.Fatalf("starter llamado %d veces, esperaba 2", len(starter.calls))
	}
}

func TestUpdateContentMarksModified(t *testing.T) {
	svc := NewService(newTestRepo(), nil)

	it, err := svc.UpdateContent(context.Background(), 1, seqRef(1), "texto corregido", "reviewer-1")
	if err != nil {
		t.Fatalf("UpdateContent: %v", err)
	}
	if it.Status != StatusModified || !it.HasChanges() {
		t.Fatalf("ítem tras edición: %+v", it)
	}

	if _, err := svc.UpdateContent(context.Background(), 1, seqRef(1), "   ", "reviewer-1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("contenido vacío: err = %v", err)
	}
}

func TestSetMarkedDoesNotStampReviewer(t *testing.T) {
	repo := newTestRepo()
	starter := &recordingStarter{}
	svc := NewService(repo, starter)

	it, err := svc.SetMarked(context.Background(), 1, seqRef(4), true)
	if err != nil {
		t.Fatalf("SetMarked: %v", err)
	}
	if !it.IsMarked || it.ReviewedBy != "" || it.ReviewedAt != nil {
		t.Fatalf("marcar no es revisar: %+v", it)
	}
	if len(starter.calls) != 0 {
		t.Fatal("marcar no debe disparar tareas")
	}

	it, err = svc.SetMarked(context.Background(), 1, seqRef(4), false)
	if err != nil {
		t.Fatalf("SetMarked off: %v", err)
	}
	if it.IsMarked {
		t.Fatal("la marca no se apagó")
	}
}
