package progress

import (
	"context"
	"errors"
	"testing"

	"dataset-review/internal/domain/items"
	"dataset-review/internal/domain/selection"
)

// -------------------------
// Reader de prueba
// -------------------------

type testReader struct {
	items    []items.Item
	failures int // cantidad de llamadas que fallan antes de responder
	calls    int
}

func (r *testReader) ListBySelection(ctx context.Context, datasetID int, sel selection.Selection) ([]items.Item, error) {
	r.calls++
	if r.failures > 0 {
		r.failures--
		return nil, errors.New("storage hiccup")
	}

	out := make([]items.Item, 0, sel.Count())
	for pos := 1; pos <= sel.Count(); pos++ {
		ref, err := sel.Resolve(pos)
		if err != nil {
			return nil, err
		}
		for _, it := range r.items {
			if it.DatasetID != datasetID {
				continue
			}
			if (ref.Kind == selection.KindRange && it.SeqNum == ref.Seq) ||
				(ref.Kind == selection.KindIDSet && it.ID == ref.ID) {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

func seedItems() []items.Item {
	statuses := []items.Status{
		items.StatusPending,
		items.StatusApproved,
		items.StatusPending,
		items.StatusModified,
		items.StatusRejected,
	}
	out := make([]items.Item, 0, len(statuses))
	for i, st := range statuses {
		out = append(out, items.Item{
			ID:        100 + i,
			DatasetID: 1,
			SeqNum:    i + 1,
			Status:    st,
			IsMarked:  i == 2, // el tercero está marcado
		})
	}
	return out
}

func TestSummarize_CountsByStatusAndMarked(t *testing.T) {
	svc := NewService(&testReader{items: seedItems()})

	sel, _ := selection.NewRange(1, 5)
	sum, err := svc.Summarize(context.Background(), 1, sel)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	want := Summary{Total: 5, Pending: 2, Approved: 1, Rejected: 1, Modified: 1, Marked: 1}
	if sum != want {
		t.Fatalf("unexpected summary: got %+v want %+v", sum, want)
	}
}

func TestSummarize_IDSetSelection(t *testing.T) {
	svc := NewService(&testReader{items: seedItems()})

	sel, _ := selection.NewIDSet([]int{100, 102, 104})
	sum, err := svc.Summarize(context.Background(), 1, sel)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Total != 3 || sum.Pending != 2 || sum.Rejected != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestReviewedCount(t *testing.T) {
	svc := NewService(&testReader{items: seedItems()})

	sel, _ := selection.NewRange(1, 5)
	n, err := svc.ReviewedCount(context.Background(), 1, sel)
	if err != nil {
		t.Fatalf("ReviewedCount: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 reviewed (non pending), got %d", n)
	}
}

func TestFirstMatching_NextPendingInPositionOrder(t *testing.T) {
	svc := NewService(&testReader{items: seedItems()})

	sel, _ := selection.NewRange(2, 5) // posiciones 1..4 => seq 2..5
	pos, found, err := svc.FirstMatching(context.Background(), 1, sel, IsPending)
	if err != nil {
		t.Fatalf("FirstMatching: %v", err)
	}
	if !found || pos != 2 {
		t.Fatalf("expected first pending at position 2 (seq 3), got pos=%d found=%v", pos, found)
	}

	pos, found, err = svc.FirstMatching(context.Background(), 1, sel, IsMarked)
	if err != nil {
		t.Fatalf("FirstMatching marked: %v", err)
	}
	if !found || pos != 2 {
		t.Fatalf("expected marked item at position 2, got pos=%d found=%v", pos, found)
	}
}

func TestFirstMatching_NoMatch(t *testing.T) {
	svc := NewService(&testReader{items: seedItems()})

	sel, _ := selection.NewIDSet([]int{101}) // approved
	_, found, err := svc.FirstMatching(context.Background(), 1, sel, IsPending)
	if err != nil {
		t.Fatalf("FirstMatching: %v", err)
	}
	if found {
		t.Fatalf("expected no match")
	}
}

func TestList_RetriesIdempotentReads(t *testing.T) {
	reader := &testReader{items: seedItems(), failures: 1}
	svc := NewService(reader)

	sel, _ := selection.NewRange(1, 5)
	if _, err := svc.Summarize(context.Background(), 1, sel); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if reader.calls < 2 {
		t.Fatalf("expected at least 2 calls, got %d", reader.calls)
	}
}
