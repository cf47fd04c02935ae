// Package engine provides the geofence event processor: the pipeline from
// raw OS transition to confirmed engine event.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/GeoShift/internal/geo"
	"github.com/BTreeMap/GeoShift/internal/models"
)

// OnGeofenceTransition consumes one raw transition. Transitions arriving
// before MarkReady are buffered in the boot gate; transitions arriving
// during a reconfiguration are buffered in the reconfigure queue. Everything
// else flows through the full pipeline immediately.
func (e *Engine) OnGeofenceTransition(ctx context.Context, raw models.RawTransition) error {
	if err := raw.Validate(); err != nil {
		return fmt.Errorf("invalid transition: %w", err)
	}
	e.metrics.Transition(string(raw.Kind))

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		e.bootGate.Push(raw)
		e.metrics.Queued("boot_gate")
		return nil
	}
	if e.reconfiguring {
		e.reconfigQueue.Push(raw)
		e.metrics.Queued("reconfigure")
		return nil
	}
	e.processTransition(ctx, raw)
	return nil
}

// processTransition runs the pipeline for one transition: dedup, fence
// resolution, best-effort position enrichment and sample logging, state
// machine delivery, interval recompute. Enrichment failures never abort
// delivery. Caller must hold e.mu.
func (e *Engine) processTransition(ctx context.Context, raw models.RawTransition) {
	if e.dedup.IsDuplicate(raw.FenceID, raw.Kind) {
		slog.Warn("Duplicate transition dropped", "fence", raw.FenceID, "kind", raw.Kind)
		e.metrics.DuplicateDropped()
		return
	}

	fence, known := e.fences.Get(raw.FenceID)
	fenceName := e.fences.Name(raw.FenceID)
	if !known {
		slog.Warn("Transition for unknown fence, proceeding with fallback name",
			"fence", raw.FenceID, "kind", raw.Kind)
	}

	pos, err := e.positions.GetLastKnownPosition(ctx, e.cfg.CachedPositionMaxAge, e.cfg.CachedPositionAccuracy)
	if err != nil {
		slog.Debug("No cached position for transition enrichment", "error", err, "fence", raw.FenceID)
		pos = nil
	}
	if pos != nil {
		e.flagLowAccuracy(pos.AccuracyMeters)
		if known {
			ev := geo.Evaluate(*pos, fence, geo.HysteresisFor(raw.Kind))
			sample := sampleFromEvaluation(raw.FenceID, raw.Kind, models.SampleSourceGeofence, ev, pos.AccuracyMeters, raw.ObservedAt)
			if err := e.store.AddSample(sample); err != nil {
				slog.Error("Failed to log transition sample", "error", err, "fence", raw.FenceID)
			}
		}
	}

	event := models.GeofenceEvent{
		FenceID:    raw.FenceID,
		FenceName:  fenceName,
		Kind:       raw.Kind,
		ObservedAt: raw.ObservedAt,
		Position:   pos,
	}
	slog.Info("Geofence event confirmed", "fence", raw.FenceID, "name", fenceName, "kind", raw.Kind)
	e.handleGeofenceEvent(ctx, event)
	e.recomputeInterval()
}

// ReconfigureFences replaces the monitored fence set wholesale. Transitions
// arriving mid-rebuild are buffered and replayed after a short debounce.
func (e *Engine) ReconfigureFences(ctx context.Context, fences []models.Fence) error {
	for i := range fences {
		if err := fences[i].Validate(); err != nil {
			return fmt.Errorf("fence %q: %w", fences[i].ID, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.reconfiguring = true
	if err := e.store.ReplaceFences(e.cfg.UserID, fences); err != nil {
		slog.Error("Failed to persist fence set, continuing with in-memory cache", "error", err)
	}
	e.fences.Replace(fences)
	e.reconfiguring = false
	slog.Info("Fence set reconfigured", "count", len(fences))

	// Debounced single drain: a burst of reconfigurations collapses into
	// one replay.
	if e.drainTimerID != "" {
		if err := e.timer.Cancel(e.drainTimerID); err != nil {
			slog.Warn("Failed to cancel prior drain timer", "error", err)
		}
	}
	id, err := e.timer.ScheduleAfter(e.cfg.DrainDebounce, e.drainReconfigureQueue)
	if err != nil {
		slog.Error("Failed to schedule reconfigure drain, draining inline", "error", err)
		e.drainLocked()
		return nil
	}
	e.drainTimerID = id
	return nil
}

// drainReconfigureQueue is the debounce timer callback.
func (e *Engine) drainReconfigureQueue() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drainTimerID = ""
	e.drainLocked()
}

// drainLocked replays surviving buffered transitions through a reduced
// pipeline that still deduplicates but skips the reconfiguration check, so
// back-to-back reconfigurations cannot defer replay forever. Guarded against
// concurrent drains. Caller must hold e.mu.
func (e *Engine) drainLocked() {
	if e.draining {
		return
	}
	e.draining = true
	defer func() { e.draining = false }()

	for _, raw := range e.reconfigQueue.Drain() {
		e.processTransition(context.Background(), raw)
	}
}

// MarkReady marks the state machine initialized and drains the boot gate in
// arrival order. Fence names are resolved at drain time, not enqueue time,
// so transitions buffered before the fence cache was populated still get
// their proper names.
func (e *Engine) MarkReady(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ready {
		return
	}
	e.ready = true
	slog.Info("Engine ready, draining boot gate", "queued", e.bootGate.Len())

	for _, raw := range e.bootGate.Drain() {
		if e.reconfiguring {
			e.reconfigQueue.Push(raw)
			continue
		}
		e.processTransition(ctx, raw)
	}

	if e.registrar != nil {
		if err := e.registrar.Register(HeartbeatTaskName, e.heartbeat.Interval); err != nil {
			slog.Error("Failed to register heartbeat task", "error", err)
		}
	}
}
