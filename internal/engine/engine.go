// Package engine implements the geofence work-session engine.
//
// The engine turns OS-delivered geofence transitions and periodic heartbeat
// ticks into confirmed work-session records. It owns all mutable state
// (fence cache, pending action, pause state, queues, dedup table, heartbeat
// interval) behind a single mutex: handlers run to completion before the
// next is processed, and every handler re-reads state after a blocking call
// instead of trusting captured values.
package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/GeoShift/internal/geo"
	"github.com/BTreeMap/GeoShift/internal/models"
	"github.com/BTreeMap/GeoShift/internal/notify"
	"github.com/BTreeMap/GeoShift/internal/position"
	"github.com/BTreeMap/GeoShift/internal/store"
)

// HeartbeatTaskName is the registrar task name used for the heartbeat poll.
const HeartbeatTaskName = "heartbeat"

// TaskRegistrar registers and unregisters background tasks with the platform
// scheduler. Both operations must be idempotent: registering replaces any
// prior registration of the same name, and unregistering an unknown name is
// success.
type TaskRegistrar interface {
	Register(name string, interval time.Duration) error
	Unregister(name string) error
}

// eventBufferSize bounds the outbound event channel. Emission is
// non-blocking; a slow consumer loses events rather than stalling handlers.
const eventBufferSize = 64

// pendingAction is the single live confirmable action. At most one exists
// at a time per engine.
type pendingAction struct {
	kind          models.PendingKind
	fenceID       string
	fenceName     string
	startedAt     time.Time
	deadline      time.Time
	timerID       string
	notifHandle   string
	vigilanceLeft int
}

// pauseState exists only while a user-initiated pause is active.
type pauseState struct {
	fenceID    string
	fenceName  string
	startedAt  time.Time
	timerID    string
	alarm      bool
	alarmNotif string
	alarmSince time.Time
}

// Engine is the session engine instance. Construct with New; all state is
// owned by the instance so multiple engines (e.g., per test) coexist freely.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	store     store.Store
	timer     models.Timer
	notifier  notify.Service
	positions position.Source
	registrar TaskRegistrar
	metrics   *Metrics

	fences        *geo.Cache
	dedup         *deduper
	bootGate      *transitionQueue
	reconfigQueue *transitionQueue
	pingPong      *pingPongDetector

	ready         bool
	reconfiguring bool
	draining      bool
	drainTimerID  string

	pending *pendingAction
	pause   *pauseState

	heartbeat     models.HeartbeatState
	lowAccuracyAt time.Time

	events chan models.EngineEvent
	now    func() time.Time
}

// New builds an engine from its collaborators. metrics and registrar may be
// nil; every other collaborator is required.
func New(st store.Store, timer models.Timer, notifier notify.Service, positions position.Source, registrar TaskRegistrar, metrics *Metrics, opts ...Option) *Engine {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.applyDefaults()

	e := &Engine{
		cfg:           cfg,
		store:         st,
		timer:         timer,
		notifier:      notifier,
		positions:     positions,
		registrar:     registrar,
		metrics:       metrics,
		fences:        geo.NewCache(),
		dedup:         newDeduper(cfg.DedupWindow),
		bootGate:      newTransitionQueue("boot_gate", cfg.QueueCap, cfg.QueueMaxAge),
		reconfigQueue: newTransitionQueue("reconfigure", cfg.QueueCap, cfg.QueueMaxAge),
		heartbeat:     models.HeartbeatState{Interval: IntervalNormal, Reason: ReasonNormal},
		events:        make(chan models.EngineEvent, eventBufferSize),
		now:           time.Now,
	}
	e.pingPong = newPingPongDetector(st, cfg.PingPongWindow, cfg.PingPongThreshold)
	return e
}

// Events returns the outbound event channel. Events are dropped, not
// blocked on, when the consumer falls behind.
func (e *Engine) Events() <-chan models.EngineEvent {
	return e.events
}

// Status returns a snapshot of the engine's externally visible state.
func (e *Engine) Status() models.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := models.EngineStatus{
		MonitoringActive:  e.ready,
		HeartbeatInterval: e.heartbeat.Interval,
		IntervalReason:    e.heartbeat.Reason,
	}
	if e.pending != nil {
		status.Pending = &models.PendingStatus{
			Kind:      e.pending.kind,
			FenceID:   e.pending.fenceID,
			FenceName: e.pending.fenceName,
			StartedAt: e.pending.startedAt,
			Deadline:  e.pending.deadline,
		}
	}
	if e.pause != nil {
		status.Pause = &models.PauseStatus{
			FenceID:   e.pause.fenceID,
			FenceName: e.pause.fenceName,
			StartedAt: e.pause.startedAt,
			Alarm:     e.pause.alarm,
		}
	}
	return status
}

// Stop cancels all timers, withdraws open prompts, and unregisters the
// heartbeat task. The persisted pending record is left in place so a later
// relaunch can still resolve it by deadline.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		e.cancelTimersAndPrompt(e.pending.timerID, e.pending.notifHandle)
		e.pending = nil
	}
	if e.pause != nil {
		e.cancelTimersAndPrompt(e.pause.timerID, e.pause.alarmNotif)
		e.pause = nil
	}
	if e.drainTimerID != "" {
		if err := e.timer.Cancel(e.drainTimerID); err != nil {
			slog.Warn("Engine failed to cancel drain timer", "error", err)
		}
		e.drainTimerID = ""
	}
	e.ready = false
	if e.registrar != nil {
		if err := e.registrar.Unregister(HeartbeatTaskName); err != nil {
			slog.Warn("Engine failed to unregister heartbeat task", "error", err)
		}
	}
	slog.Info("Engine stopped")
}

// emit publishes an outbound event without blocking the handler.
func (e *Engine) emit(ev models.EngineEvent) {
	select {
	case e.events <- ev:
	default:
		slog.Warn("Engine event channel full, dropping event", "kind", ev.Kind)
	}
}

// cancelTimersAndPrompt tears down a state's timer and notification. Both
// cancels are idempotent; failures are logged, never propagated.
func (e *Engine) cancelTimersAndPrompt(timerID, notifHandle string) {
	if timerID != "" {
		if err := e.timer.Cancel(timerID); err != nil {
			slog.Warn("Engine failed to cancel timer", "error", err, "timerID", timerID)
		}
	}
	if notifHandle != "" {
		if err := e.notifier.Cancel(notifHandle); err != nil {
			slog.Warn("Engine failed to cancel prompt", "error", err, "handle", notifHandle)
		}
	}
}

// recomputeInterval re-runs the adaptive interval policy and re-registers
// the heartbeat task when the interval changed. Caller must hold e.mu.
func (e *Engine) recomputeInterval() {
	in := IntervalInputs{
		LowAccuracyRecent: !e.lowAccuracyAt.IsZero() && e.now().Sub(e.lowAccuracyAt) < e.cfg.LowAccuracyWindow,
	}
	if e.pending != nil {
		in.Pending = e.pending.kind
	}
	if e.pause != nil {
		in.Paused = true
	}

	next := ChooseInterval(in)
	if next == e.heartbeat {
		return
	}
	prev := e.heartbeat
	e.heartbeat = next
	slog.Info("Heartbeat interval changed",
		"from", prev.Interval, "to", next.Interval, "reason", next.Reason)

	if e.registrar == nil {
		return
	}
	// Unregister-then-register so a stale registration can never survive
	// alongside the new one.
	if err := e.registrar.Unregister(HeartbeatTaskName); err != nil {
		slog.Warn("Heartbeat task unregister failed", "error", err)
	}
	if err := e.registrar.Register(HeartbeatTaskName, next.Interval); err != nil {
		slog.Error("Heartbeat task register failed", "error", err, "interval", next.Interval)
	}
}

// flagLowAccuracy records a low-accuracy GPS event for the interval policy.
// Caller must hold e.mu.
func (e *Engine) flagLowAccuracy(accuracy float64) {
	if accuracy <= e.cfg.LowAccuracyThreshold {
		return
	}
	e.lowAccuracyAt = e.now()
	slog.Debug("Low GPS accuracy flagged", "accuracy_m", accuracy, "threshold_m", e.cfg.LowAccuracyThreshold)
}
