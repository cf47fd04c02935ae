// Package engine provides the pending-action state machine: the path from a
// confirmed geofence event to an opened or closed session, via time-boxed,
// auto-resolving user prompts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/GeoShift/internal/geo"
	"github.com/BTreeMap/GeoShift/internal/models"
)

// promptKindFor maps a pending kind to the prompt that announces it.
func promptKindFor(kind models.PendingKind) models.PromptKind {
	switch kind {
	case models.PendingEnter:
		return models.PromptEnter
	case models.PendingExit:
		return models.PromptExit
	case models.PendingReturn:
		return models.PromptReturn
	default:
		return models.PromptPauseAlarm
	}
}

// handleGeofenceEvent dispatches a confirmed event into the state machine.
// Caller must hold e.mu.
func (e *Engine) handleGeofenceEvent(ctx context.Context, event models.GeofenceEvent) {
	switch event.Kind {
	case models.TransitionEnter:
		e.handleEnter(ctx, event)
	case models.TransitionExit:
		e.handleExit(ctx, event)
	}
}

// handleEnter processes a confirmed enter transition.
func (e *Engine) handleEnter(ctx context.Context, event models.GeofenceEvent) {
	if e.pause != nil {
		if e.pause.fenceID == event.FenceID {
			// Returned during a pause: the pause is superseded by a
			// return prompt.
			e.cancelTimersAndPrompt(e.pause.timerID, e.pause.alarmNotif)
			e.clearPersisted()
			e.pause = nil
			e.startPending(ctx, models.PendingReturn, event.FenceID, event.FenceName, e.cfg.ReturnTimeout)
			return
		}
		slog.Warn("Enter for a different fence while paused, ignoring",
			"paused_fence", e.pause.fenceID, "fence", event.FenceID)
		return
	}

	if e.pending != nil {
		switch {
		case e.pending.kind == models.PendingExit && e.pending.fenceID == event.FenceID:
			// Re-entered before the exit was confirmed: the exit was
			// boundary noise, the session stays open.
			slog.Info("Re-entry canceled pending exit", "fence", event.FenceID)
			e.finishPending("", "reentered")
		case e.pending.kind == models.PendingReturn && e.pending.fenceID == event.FenceID:
			slog.Debug("Enter while return already pending, ignoring", "fence", event.FenceID)
		default:
			// An open entry prompt is not superseded just because another
			// fence reported an enter.
			slog.Warn("Enter while another action is pending, ignoring",
				"pending_kind", e.pending.kind, "pending_fence", e.pending.fenceID, "fence", event.FenceID)
		}
		return
	}

	sess, err := e.store.GetOpenSession(e.cfg.UserID)
	if err != nil {
		slog.Error("Failed to look up open session on enter", "error", err, "fence", event.FenceID)
	}
	if sess != nil {
		if sess.FenceID == event.FenceID {
			slog.Debug("Enter for fence with open session, ignoring", "fence", event.FenceID)
			return
		}
		// Moved to a different fence: close the prior session before
		// prompting for the new one.
		slog.Info("Enter at new fence auto-closes prior session",
			"prior_fence", sess.FenceID, "fence", event.FenceID)
		e.closeSessionLocked(models.SessionKindAuto, e.cfg.CloseAdjustmentMinutes)
	}

	skipped, err := e.store.IsSkipped(e.cfg.UserID, event.FenceID, models.DayKey(e.now()))
	if err != nil {
		slog.Error("Failed to check skip list", "error", err, "fence", event.FenceID)
	}
	if skipped {
		slog.Info("Fence skipped for today, no entry prompt", "fence", event.FenceID)
		return
	}

	e.startPending(ctx, models.PendingEnter, event.FenceID, event.FenceName, e.cfg.EntryTimeout)
}

// handleExit processes a confirmed exit transition.
func (e *Engine) handleExit(ctx context.Context, event models.GeofenceEvent) {
	if e.pending != nil {
		switch {
		case e.pending.kind == models.PendingEnter && e.pending.fenceID == event.FenceID:
			// Left again before the entry was confirmed: no session is
			// created.
			slog.Info("Exit canceled pending entry", "fence", event.FenceID)
			e.finishPending("", "left_before_start")
		case e.pending.kind == models.PendingReturn && e.pending.fenceID == event.FenceID:
			// Left again while the return prompt was open: supersede it
			// with an exit prompt for the still-open session.
			slog.Info("Exit superseded pending return", "fence", event.FenceID)
			e.finishPending("", "left_again")
			e.startPending(ctx, models.PendingExit, event.FenceID, event.FenceName, e.cfg.ExitTimeout)
		case e.pending.kind == models.PendingExit:
			slog.Debug("Exit while exit already pending, ignoring", "fence", event.FenceID)
		default:
			slog.Warn("Exit while another action is pending, ignoring",
				"pending_kind", e.pending.kind, "fence", event.FenceID)
		}
		return
	}

	if e.pause != nil {
		// The pause already accounts for the user's absence; its expiry
		// alarm re-checks GPS.
		slog.Debug("Exit during pause, ignoring", "fence", event.FenceID)
		return
	}

	sess, err := e.store.GetOpenSession(e.cfg.UserID)
	if err != nil {
		slog.Error("Failed to look up open session on exit", "error", err, "fence", event.FenceID)
		return
	}
	if sess == nil || sess.FenceID != event.FenceID {
		slog.Warn("Exit with no matching open session, ignoring", "fence", event.FenceID)
		return
	}

	e.startPending(ctx, models.PendingExit, event.FenceID, event.FenceName, e.cfg.ExitTimeout)
}

// startPending enters a timer-bearing pending state: persist the TTL mirror,
// arm the auto-resolve timer, and show the prompt. Caller must hold e.mu and
// have cleared any prior pending or pause state.
func (e *Engine) startPending(ctx context.Context, kind models.PendingKind, fenceID, fenceName string, timeout time.Duration) {
	now := e.now()
	p := &pendingAction{
		kind:          kind,
		fenceID:       fenceID,
		fenceName:     fenceName,
		startedAt:     now,
		deadline:      now.Add(timeout),
		vigilanceLeft: e.cfg.VigilanceChecks,
	}
	e.pending = p
	e.persistPending(kind, fenceID, fenceName, now, p.deadline)

	timerID, err := e.timer.ScheduleAfter(timeout, func() { e.onPendingTimeout(p) })
	if err != nil {
		slog.Error("Failed to arm pending timer, relying on heartbeat TTL resolution",
			"error", err, "kind", kind, "fence", fenceID)
	} else {
		p.timerID = timerID
	}

	promptKind := promptKindFor(kind)
	handle, err := e.notifier.Schedule(ctx, promptKind, fenceID, fenceName, timeout)
	if err != nil {
		// Degraded UX only: the timer still auto-resolves.
		slog.Error("Failed to show prompt", "error", err, "kind", promptKind, "fence", fenceID)
	} else {
		p.notifHandle = handle
	}

	slog.Info("Pending action started", "kind", kind, "fence", fenceID, "deadline", p.deadline)
	e.metrics.PromptShown(string(promptKind))
	e.emit(models.EngineEvent{
		Kind:      models.EventPromptShown,
		FenceID:   fenceID,
		FenceName: fenceName,
		Prompt:    promptKind,
	})
}

// finishPending tears down the live pending action: timer, prompt, persisted
// mirror. Caller must hold e.mu.
func (e *Engine) finishPending(action models.UserAction, detail string) {
	p := e.pending
	if p == nil {
		return
	}
	e.cancelTimersAndPrompt(p.timerID, p.notifHandle)
	e.clearPersisted()
	e.pending = nil
	e.emit(models.EngineEvent{
		Kind:      models.EventPromptResolved,
		FenceID:   p.fenceID,
		FenceName: p.fenceName,
		Prompt:    promptKindFor(p.kind),
		Action:    action,
		Detail:    detail,
	})
}

// onPendingTimeout is the auto-resolve timer callback. The captured pointer
// is compared against the live pending action: a superseded action's late
// timer is a no-op.
func (e *Engine) onPendingTimeout(p *pendingAction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != p {
		return
	}
	switch p.kind {
	case models.PendingEnter:
		slog.Info("Entry timeout, starting session", "fence", p.fenceID)
		e.finishPending("", "timeout")
		e.openSessionLocked(p.fenceID, p.fenceName, models.SessionKindAuto)
	case models.PendingExit:
		e.resolveExit(p)
	case models.PendingReturn:
		slog.Info("Return timeout, session resumes", "fence", p.fenceID)
		e.finishPending("", "timeout")
		e.emit(models.EngineEvent{Kind: models.EventPauseEnded, FenceID: p.fenceID, FenceName: p.fenceName, Detail: "auto_resumed"})
	}
	e.recomputeInterval()
}

// resolveExit runs the exit auto-resolution: a GPS re-check with the exit
// hysteresis overrides the stop if the device never really left; repeated
// inside readings bound the re-check loop. Caller must hold e.mu and have
// verified p is the live pending action.
func (e *Engine) resolveExit(p *pendingAction) {
	fence, known := e.fences.Get(p.fenceID)
	pos, err := e.positions.GetCurrentPosition(context.Background(), e.cfg.LowAccuracyThreshold)
	if err != nil {
		slog.Warn("Exit re-check position unavailable, closing session", "error", err, "fence", p.fenceID)
		pos = nil
	}
	// Handlers re-read state after a blocking call.
	if e.pending != p {
		return
	}

	if pos != nil && known {
		e.flagLowAccuracy(pos.AccuracyMeters)
		ev := geo.Evaluate(*pos, fence, geo.HysteresisExit)
		sample := sampleFromEvaluation(p.fenceID, models.TransitionExit, models.SampleSourceHeartbeat, ev, pos.AccuracyMeters, e.now())
		if err := e.store.AddSample(sample); err != nil {
			slog.Error("Failed to log exit re-check sample", "error", err, "fence", p.fenceID)
		}
		if ev.IsInside {
			if p.vigilanceLeft > 0 {
				p.vigilanceLeft--
				e.enterVigilance(p)
				return
			}
			// Every re-check found the device inside: the exit signal
			// was noise, the session stays open.
			slog.Info("Exit abandoned after vigilance, still inside", "fence", p.fenceID)
			e.finishPending("", "still_inside")
			return
		}
	}

	slog.Info("Exit confirmed, closing session", "fence", p.fenceID)
	e.finishPending("", "timeout")
	e.closeSessionLocked(models.SessionKindAuto, e.cfg.CloseAdjustmentMinutes)
}

// enterVigilance re-arms the exit resolution after a short spacing. The
// prompt is withdrawn: the device is still inside, there is nothing for the
// user to confirm yet.
func (e *Engine) enterVigilance(p *pendingAction) {
	if p.notifHandle != "" {
		if err := e.notifier.Cancel(p.notifHandle); err != nil {
			slog.Warn("Failed to cancel exit prompt for vigilance", "error", err)
		}
		p.notifHandle = ""
	}
	p.deadline = e.now().Add(e.cfg.VigilanceSpacing)
	e.persistPending(p.kind, p.fenceID, p.fenceName, p.startedAt, p.deadline)

	timerID, err := e.timer.ScheduleAfter(e.cfg.VigilanceSpacing, func() { e.onVigilanceCheck(p) })
	if err != nil {
		slog.Error("Failed to arm vigilance timer, abandoning exit", "error", err, "fence", p.fenceID)
		e.finishPending("", "still_inside")
		return
	}
	p.timerID = timerID
	slog.Info("Exit vigilance re-check scheduled",
		"fence", p.fenceID, "remaining_checks", p.vigilanceLeft, "spacing", e.cfg.VigilanceSpacing)
}

// onVigilanceCheck is the vigilance re-check timer callback.
func (e *Engine) onVigilanceCheck(p *pendingAction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != p {
		return
	}
	e.resolveExit(p)
	e.recomputeInterval()
}

// OnUserAction delivers a user's prompt response to the state machine.
func (e *Engine) OnUserAction(ctx context.Context, action models.UserAction) error {
	if !models.IsValidUserAction(action) {
		return fmt.Errorf("unknown user action %q", action)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.recomputeInterval()

	if e.pending != nil {
		return e.actOnPending(ctx, action)
	}
	if e.pause != nil {
		return e.actOnPause(ctx, action)
	}
	slog.Warn("User action with nothing pending, ignoring", "action", action)
	return nil
}

// actOnPending applies a user action to the live pending action. Caller must
// hold e.mu.
func (e *Engine) actOnPending(ctx context.Context, action models.UserAction) error {
	p := e.pending
	slog.Info("User action on pending", "action", action, "kind", p.kind, "fence", p.fenceID)

	switch p.kind {
	case models.PendingEnter:
		switch action {
		case models.ActionStart, models.ActionDefaultTap:
			e.finishPending(action, "")
			e.openSessionLocked(p.fenceID, p.fenceName, models.SessionKindManual)
		case models.ActionSkipToday:
			if err := e.store.AddSkip(e.cfg.UserID, p.fenceID, models.DayKey(e.now())); err != nil {
				slog.Error("Failed to record skip", "error", err, "fence", p.fenceID)
			}
			e.finishPending(action, "skipped")
		default:
			slog.Warn("Action not applicable to entry prompt, ignoring", "action", action)
		}

	case models.PendingExit:
		switch action {
		case models.ActionOK:
			e.finishPending(action, "")
			e.closeSessionLocked(models.SessionKindManual, e.cfg.CloseAdjustmentMinutes)
		case models.ActionPause:
			e.finishPending(action, "paused")
			e.startPause(p.fenceID, p.fenceName)
		case models.ActionDefaultTap:
			e.resolveExit(p)
		default:
			slog.Warn("Action not applicable to exit prompt, ignoring", "action", action)
		}

	case models.PendingReturn:
		switch action {
		case models.ActionResume, models.ActionDefaultTap:
			e.finishPending(action, "")
			e.emit(models.EngineEvent{Kind: models.EventPauseEnded, FenceID: p.fenceID, FenceName: p.fenceName, Detail: "resumed"})
		case models.ActionStop:
			e.finishPending(action, "")
			e.closeSessionLocked(models.SessionKindManual, e.cfg.CloseAdjustmentMinutes)
		default:
			slog.Warn("Action not applicable to return prompt, ignoring", "action", action)
		}
	}
	return nil
}

// actOnPause applies a user action to the live pause. Caller must hold e.mu.
func (e *Engine) actOnPause(_ context.Context, action models.UserAction) error {
	ps := e.pause
	slog.Info("User action on pause", "action", action, "fence", ps.fenceID, "alarm", ps.alarm)

	switch action {
	case models.ActionResume, models.ActionOK, models.ActionDefaultTap:
		e.endPause("resumed")
	case models.ActionStop:
		e.endPause("stopped")
		e.closeSessionLocked(models.SessionKindManual, e.cfg.CloseAdjustmentMinutes)
	case models.ActionSnooze:
		if ps.alarm {
			e.snoozePause(ps)
		} else {
			slog.Warn("Snooze without an active alarm, ignoring")
		}
	default:
		slog.Warn("Action not applicable to pause, ignoring", "action", action)
	}
	return nil
}

// startPause begins a pause countdown. Caller must hold e.mu and have
// cleared any pending action.
func (e *Engine) startPause(fenceID, fenceName string) {
	now := e.now()
	ps := &pauseState{
		fenceID:   fenceID,
		fenceName: fenceName,
		startedAt: now,
	}
	e.pause = ps
	e.persistPending(models.PendingPause, fenceID, fenceName, now, now.Add(e.cfg.PauseDuration))

	timerID, err := e.timer.ScheduleAfter(e.cfg.PauseDuration, func() { e.onPauseExpired(ps) })
	if err != nil {
		slog.Error("Failed to arm pause timer, relying on heartbeat TTL resolution", "error", err, "fence", fenceID)
	} else {
		ps.timerID = timerID
	}

	slog.Info("Pause started", "fence", fenceID, "duration", e.cfg.PauseDuration)
	e.emit(models.EngineEvent{Kind: models.EventPauseStarted, FenceID: fenceID, FenceName: fenceName})
}

// endPause tears down the live pause: timer, alarm prompt, persisted mirror.
// Caller must hold e.mu.
func (e *Engine) endPause(detail string) {
	ps := e.pause
	if ps == nil {
		return
	}
	e.cancelTimersAndPrompt(ps.timerID, ps.alarmNotif)
	e.clearPersisted()
	e.pause = nil
	e.emit(models.EngineEvent{Kind: models.EventPauseEnded, FenceID: ps.fenceID, FenceName: ps.fenceName, Detail: detail})
}

// onPauseExpired is the pause countdown timer callback: escalate to the
// urgent alarm with its own short response window.
func (e *Engine) onPauseExpired(ps *pauseState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pause != ps || ps.alarm {
		return
	}
	now := e.now()
	ps.alarm = true
	ps.alarmSince = now
	e.persistPending(models.PendingAlarm, ps.fenceID, ps.fenceName, ps.startedAt, now.Add(e.cfg.AlarmWindow))

	timerID, err := e.timer.ScheduleAfter(e.cfg.AlarmWindow, func() { e.onAlarmTimeout(ps) })
	if err != nil {
		slog.Error("Failed to arm alarm timer, relying on heartbeat TTL resolution", "error", err, "fence", ps.fenceID)
		ps.timerID = ""
	} else {
		ps.timerID = timerID
	}

	handle, err := e.notifier.Schedule(context.Background(), models.PromptPauseAlarm, ps.fenceID, ps.fenceName, e.cfg.AlarmWindow)
	if err != nil {
		slog.Error("Failed to show pause alarm", "error", err, "fence", ps.fenceID)
	} else {
		ps.alarmNotif = handle
	}

	slog.Info("Pause expired, alarm raised", "fence", ps.fenceID, "window", e.cfg.AlarmWindow)
	e.metrics.PromptShown(string(models.PromptPauseAlarm))
	e.emit(models.EngineEvent{
		Kind:      models.EventPromptShown,
		FenceID:   ps.fenceID,
		FenceName: ps.fenceName,
		Prompt:    models.PromptPauseAlarm,
	})
	e.recomputeInterval()
}

// onAlarmTimeout is the alarm window timer callback: no response arrived, so
// GPS decides — inside resumes the session, outside or unavailable ends it.
func (e *Engine) onAlarmTimeout(ps *pauseState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pause != ps || !ps.alarm {
		return
	}

	inside := false
	fence, known := e.fences.Get(ps.fenceID)
	pos, err := e.positions.GetCurrentPosition(context.Background(), e.cfg.LowAccuracyThreshold)
	if err != nil {
		slog.Warn("Alarm re-check position unavailable", "error", err, "fence", ps.fenceID)
	}
	if e.pause != ps {
		return
	}
	if pos != nil && known {
		e.flagLowAccuracy(pos.AccuracyMeters)
		inside = geo.Contains(*pos, fence, geo.HysteresisExit)
	}

	if inside {
		slog.Info("Alarm timeout but still inside, resuming session", "fence", ps.fenceID)
		e.endPause("resumed")
	} else {
		slog.Info("Alarm timeout outside fence, closing session", "fence", ps.fenceID)
		e.endPause("expired")
		e.closeSessionLocked(models.SessionKindAuto, e.cfg.CloseAdjustmentMinutes)
	}
	e.recomputeInterval()
}

// snoozePause restarts the pause countdown from now, dismissing the alarm.
// Caller must hold e.mu.
func (e *Engine) snoozePause(ps *pauseState) {
	e.cancelTimersAndPrompt(ps.timerID, ps.alarmNotif)
	now := e.now()
	next := &pauseState{
		fenceID:   ps.fenceID,
		fenceName: ps.fenceName,
		startedAt: now,
	}
	e.pause = next
	e.persistPending(models.PendingPause, next.fenceID, next.fenceName, now, now.Add(e.cfg.PauseDuration))

	timerID, err := e.timer.ScheduleAfter(e.cfg.PauseDuration, func() { e.onPauseExpired(next) })
	if err != nil {
		slog.Error("Failed to re-arm pause timer after snooze", "error", err, "fence", next.fenceID)
	} else {
		next.timerID = timerID
	}
	slog.Info("Pause snoozed, countdown restarted", "fence", next.fenceID, "duration", e.cfg.PauseDuration)
}

// openSessionLocked opens a session record and emits the event. Caller must
// hold e.mu.
func (e *Engine) openSessionLocked(fenceID, fenceName string, kind models.SessionKind) {
	id, err := e.store.CreateSession(e.cfg.UserID, fenceID, fenceName, kind)
	if err != nil {
		if errors.Is(err, models.ErrSessionAlreadyOpen) {
			slog.Warn("Session already open, not opening another", "fence", fenceID)
		} else {
			slog.Error("Failed to open session", "error", err, "fence", fenceID)
		}
		return
	}
	slog.Info("Session opened", "session", id, "fence", fenceID, "kind", kind)
	e.metrics.SessionOpened(string(kind))
	e.emit(models.EngineEvent{
		Kind:      models.EventSessionOpened,
		FenceID:   fenceID,
		FenceName: fenceName,
		SessionID: id,
	})
}

// closeSessionLocked closes the open session with the configured backward
// adjustment and emits the event. Caller must hold e.mu.
func (e *Engine) closeSessionLocked(kind models.SessionKind, adjustmentMinutes int) {
	sess, err := e.store.GetOpenSession(e.cfg.UserID)
	if err != nil {
		slog.Error("Failed to look up session before close", "error", err)
	}
	if err := e.store.CloseSession(e.cfg.UserID, adjustmentMinutes); err != nil {
		if errors.Is(err, models.ErrNoOpenSession) {
			slog.Warn("Close requested with no open session")
		} else {
			slog.Error("Failed to close session", "error", err)
		}
		return
	}
	ev := models.EngineEvent{Kind: models.EventSessionClosed}
	if sess != nil {
		ev.FenceID = sess.FenceID
		ev.FenceName = sess.FenceName
		ev.SessionID = sess.ID
		slog.Info("Session closed", "session", sess.ID, "fence", sess.FenceID, "adjustment_min", adjustmentMinutes)
	} else {
		slog.Info("Session closed", "adjustment_min", adjustmentMinutes)
	}
	e.metrics.SessionClosed(string(kind))
	e.emit(ev)
}

// persistPending writes the TTL mirror of a timer-bearing state. A write
// failure degrades restart recovery, never the live state machine.
func (e *Engine) persistPending(kind models.PendingKind, fenceID, fenceName string, startedAt, deadline time.Time) {
	rec := models.PendingRecord{
		UserID:    e.cfg.UserID,
		Kind:      kind,
		FenceID:   fenceID,
		FenceName: fenceName,
		StartedAt: startedAt,
		Deadline:  deadline,
	}
	if err := e.store.SavePending(rec); err != nil {
		slog.Error("Failed to persist pending record", "error", err, "kind", kind, "fence", fenceID)
	}
}

// clearPersisted removes the TTL mirror.
func (e *Engine) clearPersisted() {
	if err := e.store.ClearPending(e.cfg.UserID); err != nil {
		slog.Error("Failed to clear pending record", "error", err)
	}
}
