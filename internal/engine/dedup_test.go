package engine

import (
	"testing"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

func TestDeduperSuppressesWithinWindow(t *testing.T) {
	d := newDeduper(10 * time.Second)
	base := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	now := base
	d.now = func() time.Time { return now }

	if d.IsDuplicate("office", models.TransitionEnter) {
		t.Error("first transition must not be a duplicate")
	}
	now = base.Add(5 * time.Second)
	if !d.IsDuplicate("office", models.TransitionEnter) {
		t.Error("same key within the window must be a duplicate")
	}

	// A different kind or fence is a different key.
	if d.IsDuplicate("office", models.TransitionExit) {
		t.Error("different kind must not be a duplicate")
	}
	if d.IsDuplicate("home", models.TransitionEnter) {
		t.Error("different fence must not be a duplicate")
	}

	now = base.Add(11 * time.Second)
	if d.IsDuplicate("office", models.TransitionEnter) {
		t.Error("same key past the window must not be a duplicate")
	}
}

func TestDeduperPurgeBoundsMemory(t *testing.T) {
	d := newDeduper(10 * time.Second)
	base := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	now := base
	d.now = func() time.Time { return now }

	d.IsDuplicate("a", models.TransitionEnter)
	d.IsDuplicate("b", models.TransitionExit)
	now = base.Add(15 * time.Second)
	d.IsDuplicate("c", models.TransitionEnter)

	// a and b are within 2x the window, nothing purged yet.
	if removed := d.Purge(); removed != 0 {
		t.Errorf("expected no entries purged at 15s, got %d", removed)
	}

	now = base.Add(25 * time.Second)
	if removed := d.Purge(); removed != 2 {
		t.Errorf("expected 2 entries purged at 25s, got %d", removed)
	}
	if d.Len() != 1 {
		t.Errorf("expected 1 tracked key after purge, got %d", d.Len())
	}
}
