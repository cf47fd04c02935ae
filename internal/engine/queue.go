// Package engine provides the bounded, age-limited transition queues used by
// the boot gate and the reconfigure buffer.
package engine

import (
	"log/slog"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// queuedTransition is a raw transition waiting in a queue.
type queuedTransition struct {
	transition models.RawTransition
	enqueuedAt time.Time
}

// transitionQueue is a bounded FIFO with age-based eviction on drain. When
// full, the oldest item is evicted to make room; an item older than maxAge
// is dropped at drain time, never processed.
type transitionQueue struct {
	name   string
	cap    int
	maxAge time.Duration
	items  []queuedTransition
	now    func() time.Time
}

func newTransitionQueue(name string, cap int, maxAge time.Duration) *transitionQueue {
	return &transitionQueue{
		name:   name,
		cap:    cap,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Push appends a transition, evicting the oldest item when the queue is full.
func (q *transitionQueue) Push(t models.RawTransition) {
	if len(q.items) >= q.cap {
		evicted := q.items[0]
		q.items = q.items[1:]
		slog.Warn("Transition queue full, evicting oldest",
			"queue", q.name, "evicted_fence", evicted.transition.FenceID, "evicted_kind", evicted.transition.Kind)
	}
	q.items = append(q.items, queuedTransition{transition: t, enqueuedAt: q.now()})
	slog.Debug("Transition queued", "queue", q.name, "fence", t.FenceID, "kind", t.Kind, "depth", len(q.items))
}

// Drain removes and returns all surviving transitions in arrival order,
// dropping any item older than maxAge.
func (q *transitionQueue) Drain() []models.RawTransition {
	now := q.now()
	var survivors []models.RawTransition
	dropped := 0
	for _, item := range q.items {
		if now.Sub(item.enqueuedAt) > q.maxAge {
			dropped++
			continue
		}
		survivors = append(survivors, item.transition)
	}
	q.items = nil
	if dropped > 0 {
		slog.Warn("Transition queue dropped expired items on drain", "queue", q.name, "dropped", dropped)
	}
	slog.Debug("Transition queue drained", "queue", q.name, "delivered", len(survivors))
	return survivors
}

// Len returns the current queue depth.
func (q *transitionQueue) Len() int {
	return len(q.items)
}
