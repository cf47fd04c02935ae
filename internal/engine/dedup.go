// Package engine provides the transition deduplicator.
package engine

import (
	"log/slog"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// dedupKey identifies a transition for duplicate suppression.
type dedupKey struct {
	fenceID string
	kind    models.TransitionKind
}

// deduper suppresses repeated (fence, kind) signals within a short window.
// The OS may redeliver the same transition on process relaunch or due to
// driver retries; anything inside the window is the same physical event.
type deduper struct {
	window   time.Duration
	lastSeen map[dedupKey]time.Time
	now      func() time.Time
}

func newDeduper(window time.Duration) *deduper {
	return &deduper{
		window:   window,
		lastSeen: make(map[dedupKey]time.Time),
		now:      time.Now,
	}
}

// IsDuplicate reports whether the transition was already seen within the
// window, and records it as seen otherwise.
func (d *deduper) IsDuplicate(fenceID string, kind models.TransitionKind) bool {
	key := dedupKey{fenceID: fenceID, kind: kind}
	now := d.now()
	if last, ok := d.lastSeen[key]; ok && now.Sub(last) < d.window {
		return true
	}
	d.lastSeen[key] = now
	return false
}

// Purge drops entries older than twice the window to bound memory.
func (d *deduper) Purge() int {
	now := d.now()
	removed := 0
	for key, seen := range d.lastSeen {
		if now.Sub(seen) > 2*d.window {
			delete(d.lastSeen, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Deduper purged stale entries", "removed", removed, "remaining", len(d.lastSeen))
	}
	return removed
}

// Len returns the number of tracked keys.
func (d *deduper) Len() int {
	return len(d.lastSeen)
}

// PurgeDedup drops stale dedup entries and reports how many were removed.
// Called from periodic maintenance.
func (e *Engine) PurgeDedup() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dedup.Purge()
}
