package engine

import (
	"testing"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

func rawEnter(fenceID string) models.RawTransition {
	return models.RawTransition{FenceID: fenceID, Kind: models.TransitionEnter, ObservedAt: time.Now()}
}

func TestQueueDrainsInArrivalOrder(t *testing.T) {
	q := newTransitionQueue("test", 10, 30*time.Second)
	q.Push(rawEnter("a"))
	q.Push(rawEnter("b"))
	q.Push(rawEnter("c"))

	drained := q.Drain()
	if len(drained) != 3 {
		t.Fatalf("expected 3 items, got %d", len(drained))
	}
	for i, want := range []string{"a", "b", "c"} {
		if drained[i].FenceID != want {
			t.Errorf("position %d: expected %q, got %q", i, want, drained[i].FenceID)
		}
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue after drain, got %d", q.Len())
	}
}

func TestQueueEvictsOldestWhenFull(t *testing.T) {
	q := newTransitionQueue("test", 3, 30*time.Second)
	q.Push(rawEnter("a"))
	q.Push(rawEnter("b"))
	q.Push(rawEnter("c"))
	q.Push(rawEnter("d"))

	if q.Len() != 3 {
		t.Fatalf("expected capped length 3, got %d", q.Len())
	}
	drained := q.Drain()
	for i, want := range []string{"b", "c", "d"} {
		if drained[i].FenceID != want {
			t.Errorf("position %d: expected %q, got %q", i, want, drained[i].FenceID)
		}
	}
}

func TestQueueDropsExpiredOnDrain(t *testing.T) {
	q := newTransitionQueue("test", 10, 30*time.Second)
	base := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	now := base
	q.now = func() time.Time { return now }

	q.Push(rawEnter("stale"))
	now = base.Add(20 * time.Second)
	q.Push(rawEnter("fresh"))
	now = base.Add(40 * time.Second)

	drained := q.Drain()
	if len(drained) != 1 {
		t.Fatalf("expected 1 surviving item, got %d", len(drained))
	}
	if drained[0].FenceID != "fresh" {
		t.Errorf("expected the fresh item to survive, got %q", drained[0].FenceID)
	}
}
