// Package engine provides startup recovery of the persisted pending action.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// RecoverPending restores the persisted pending action after a process
// relaunch. An expired record is resolved immediately, exactly as the
// heartbeat would; a live record re-arms its in-memory timer and prompt for
// the remaining window.
func (e *Engine) RecoverPending(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.store.LoadPending(e.cfg.UserID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	if rec.Expired(e.now()) {
		pos, err := e.positions.GetCurrentPosition(ctx, e.cfg.LowAccuracyThreshold)
		if err != nil {
			slog.Debug("Recovery position unavailable", "error", err)
			pos = nil
		}
		e.resolveExpiredPending(pos)
		e.recomputeInterval()
		return nil
	}

	remaining := rec.Deadline.Sub(e.now())
	slog.Info("Recovering live pending action", "kind", rec.Kind, "fence", rec.FenceID, "remaining", remaining)

	switch rec.Kind {
	case models.PendingEnter, models.PendingExit, models.PendingReturn:
		e.rearmPending(ctx, rec, remaining)
	case models.PendingPause:
		e.rearmPause(rec, remaining, false)
	case models.PendingAlarm:
		e.rearmPause(rec, remaining, true)
	}
	e.recomputeInterval()
	return nil
}

// rearmPending rebuilds a pending action from its persisted record with a
// timer and prompt for the remaining window. Caller must hold e.mu.
func (e *Engine) rearmPending(ctx context.Context, rec *models.PendingRecord, remaining time.Duration) {
	p := &pendingAction{
		kind:          rec.Kind,
		fenceID:       rec.FenceID,
		fenceName:     rec.FenceName,
		startedAt:     rec.StartedAt,
		deadline:      rec.Deadline,
		vigilanceLeft: e.cfg.VigilanceChecks,
	}
	e.pending = p

	timerID, err := e.timer.ScheduleAfter(remaining, func() { e.onPendingTimeout(p) })
	if err != nil {
		slog.Error("Recovery failed to re-arm pending timer", "error", err, "kind", rec.Kind)
	} else {
		p.timerID = timerID
	}

	handle, err := e.notifier.Schedule(ctx, promptKindFor(rec.Kind), rec.FenceID, rec.FenceName, remaining)
	if err != nil {
		slog.Error("Recovery failed to re-show prompt", "error", err, "kind", rec.Kind)
	} else {
		p.notifHandle = handle
	}
}

// rearmPause rebuilds a pause (or its expiry alarm) from its persisted
// record. Caller must hold e.mu.
func (e *Engine) rearmPause(rec *models.PendingRecord, remaining time.Duration, alarm bool) {
	ps := &pauseState{
		fenceID:   rec.FenceID,
		fenceName: rec.FenceName,
		startedAt: rec.StartedAt,
		alarm:     alarm,
	}
	e.pause = ps

	var fn func()
	if alarm {
		fn = func() { e.onAlarmTimeout(ps) }
	} else {
		fn = func() { e.onPauseExpired(ps) }
	}
	timerID, err := e.timer.ScheduleAfter(remaining, fn)
	if err != nil {
		slog.Error("Recovery failed to re-arm pause timer", "error", err, "alarm", alarm)
	} else {
		ps.timerID = timerID
	}

	if alarm {
		handle, err := e.notifier.Schedule(context.Background(), models.PromptPauseAlarm, rec.FenceID, rec.FenceName, remaining)
		if err != nil {
			slog.Error("Recovery failed to re-show alarm prompt", "error", err)
		} else {
			ps.alarmNotif = handle
		}
	}
}
