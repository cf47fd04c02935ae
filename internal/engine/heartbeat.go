// Package engine provides the heartbeat: the periodic safety net that
// resolves expired persisted actions, audits containment per fence, and
// reconciles missed transitions.
package engine

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/GeoShift/internal/geo"
	"github.com/BTreeMap/GeoShift/internal/models"
)

// OnHeartbeatTick runs one heartbeat pass. Every step is best-effort: a
// failed position fetch or store call degrades that step, never the tick.
func (e *Engine) OnHeartbeatTick(ctx context.Context) {
	e.metrics.HeartbeatTick()

	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.positions.GetCurrentPosition(ctx, e.cfg.LowAccuracyThreshold)
	if err != nil {
		slog.Debug("Heartbeat position unavailable", "error", err)
		pos = nil
	}
	if pos != nil {
		e.flagLowAccuracy(pos.AccuracyMeters)
	}

	e.resolveExpiredPending(pos)
	e.auditFences(pos)
	e.reconcile(pos)
	e.recomputeInterval()
}

// resolveExpiredPending handles a persisted pending record whose deadline
// passed without its in-memory timer firing — the process was killed and
// relaunched, or the timer failed to arm. Resolution uses the same
// containment check as exits. Caller must hold e.mu.
func (e *Engine) resolveExpiredPending(pos *models.Position) {
	rec, err := e.store.LoadPending(e.cfg.UserID)
	if err != nil {
		slog.Error("Heartbeat failed to load pending record", "error", err)
		return
	}
	if rec == nil || !rec.Expired(e.now()) {
		return
	}
	slog.Warn("Expired pending record found, resolving by deadline",
		"kind", rec.Kind, "fence", rec.FenceID, "deadline", rec.Deadline)

	// Tear down whatever in-memory state is left; the persisted deadline
	// is authoritative now.
	if e.pending != nil {
		e.cancelTimersAndPrompt(e.pending.timerID, e.pending.notifHandle)
		e.pending = nil
	}
	if e.pause != nil {
		e.cancelTimersAndPrompt(e.pause.timerID, e.pause.alarmNotif)
		e.pause = nil
	}
	e.clearPersisted()

	inside := false
	if fence, known := e.fences.Get(rec.FenceID); known && pos != nil {
		inside = geo.Contains(*pos, fence, geo.HysteresisExit)
	}

	switch rec.Kind {
	case models.PendingEnter:
		e.openSessionLocked(rec.FenceID, rec.FenceName, models.SessionKindAuto)
	case models.PendingExit:
		if inside {
			slog.Info("Expired exit record but still inside, session stays open", "fence", rec.FenceID)
			return
		}
		e.closeSessionLocked(models.SessionKindAuto, e.cfg.CloseAdjustmentMinutes)
	case models.PendingReturn:
		slog.Info("Expired return record, session resumes", "fence", rec.FenceID)
		e.emit(models.EngineEvent{Kind: models.EventPauseEnded, FenceID: rec.FenceID, FenceName: rec.FenceName, Detail: "auto_resumed"})
	case models.PendingPause, models.PendingAlarm:
		if inside {
			slog.Info("Expired pause record but still inside, resuming session", "fence", rec.FenceID)
			e.emit(models.EngineEvent{Kind: models.EventPauseEnded, FenceID: rec.FenceID, FenceName: rec.FenceName, Detail: "resumed"})
			return
		}
		e.closeSessionLocked(models.SessionKindAuto, e.cfg.CloseAdjustmentMinutes)
	}
}

// auditFences evaluates containment against every cached fence, logs a
// heartbeat sample per fence, and warns on ping-pong oscillation. Detection
// only: oscillation never suppresses an exit. Caller must hold e.mu.
func (e *Engine) auditFences(pos *models.Position) {
	now := e.now()
	for _, fence := range e.fences.All() {
		if pos != nil {
			ev := geo.Evaluate(*pos, fence, geo.HysteresisExit)
			kind := models.TransitionExit
			if ev.IsInside {
				kind = models.TransitionEnter
			}
			sample := sampleFromEvaluation(fence.ID, kind, models.SampleSourceHeartbeat, ev, pos.AccuracyMeters, now)
			if err := e.store.AddSample(sample); err != nil {
				slog.Error("Failed to log heartbeat sample", "error", err, "fence", fence.ID)
			}
		}

		if ponging, alternations := e.pingPong.IsPingPonging(fence.ID, now); ponging {
			slog.Warn("Ping-pong oscillation detected",
				"fence", fence.ID, "alternations", alternations, "window", e.cfg.PingPongWindow)
			e.metrics.PingPongDetected()
			e.emit(models.EngineEvent{
				Kind:      models.EventPingPong,
				FenceID:   fence.ID,
				FenceName: fence.Name,
				Detail:    "boundary oscillation",
			})
		}
	}
}

// reconcile corrects missed transitions: inside a fence with no session and
// no skip means a missed entry; outside all fences with an open session
// means a missed exit. Skipped while an action or pause is in flight — the
// state machine owns the outcome then. Caller must hold e.mu.
func (e *Engine) reconcile(pos *models.Position) {
	if pos == nil || e.pending != nil || e.pause != nil {
		return
	}

	sess, err := e.store.GetOpenSession(e.cfg.UserID)
	if err != nil {
		slog.Error("Heartbeat failed to look up open session", "error", err)
		return
	}

	if sess == nil {
		fence, ok := e.fences.NearestContaining(*pos, geo.HysteresisEntry)
		if !ok {
			return
		}
		skipped, err := e.store.IsSkipped(e.cfg.UserID, fence.ID, models.DayKey(e.now()))
		if err != nil {
			slog.Error("Heartbeat failed to check skip list", "error", err, "fence", fence.ID)
			return
		}
		if skipped {
			return
		}
		slog.Warn("Missed entry reconciled: inside fence with no session", "fence", fence.ID)
		e.metrics.Reconciliation("missed_entry")
		e.openSessionLocked(fence.ID, fence.Name, models.SessionKindReconciled)
		return
	}

	if _, ok := e.fences.NearestContaining(*pos, geo.HysteresisExit); !ok {
		slog.Warn("Missed exit reconciled: outside all fences with open session", "fence", sess.FenceID)
		e.metrics.Reconciliation("missed_exit")
		e.closeSessionLocked(models.SessionKindReconciled, e.cfg.CloseAdjustmentMinutes)
	}
}
