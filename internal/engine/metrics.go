// Package engine provides Prometheus instrumentation for the session engine.
package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts engine activity. All methods are nil-safe so the engine can
// run uninstrumented in tests.
type Metrics struct {
	transitions     *prometheus.CounterVec
	duplicates      prometheus.Counter
	queued          *prometheus.CounterVec
	sessionsOpened  *prometheus.CounterVec
	sessionsClosed  *prometheus.CounterVec
	promptsShown    *prometheus.CounterVec
	pingPongs       prometheus.Counter
	heartbeatTicks  prometheus.Counter
	reconciliations *prometheus.CounterVec
}

// NewMetrics registers the engine's counters with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geoshift_transitions_total",
			Help: "Raw geofence transitions received, by kind.",
		}, []string{"kind"}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "geoshift_duplicate_transitions_total",
			Help: "Transitions dropped by the deduplicator.",
		}),
		queued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geoshift_queued_transitions_total",
			Help: "Transitions buffered instead of processed, by queue.",
		}, []string{"queue"}),
		sessionsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geoshift_sessions_opened_total",
			Help: "Work sessions opened, by kind.",
		}, []string{"kind"}),
		sessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geoshift_sessions_closed_total",
			Help: "Work sessions closed, by kind.",
		}, []string{"kind"}),
		promptsShown: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geoshift_prompts_shown_total",
			Help: "User prompts delivered, by prompt kind.",
		}, []string{"kind"}),
		pingPongs: factory.NewCounter(prometheus.CounterOpts{
			Name: "geoshift_ping_pong_detections_total",
			Help: "Ping-pong oscillation warnings emitted.",
		}),
		heartbeatTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "geoshift_heartbeat_ticks_total",
			Help: "Heartbeat ticks processed.",
		}),
		reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geoshift_reconciliations_total",
			Help: "Missed-entry and missed-exit corrections, by direction.",
		}, []string{"direction"}),
	}
}

func (m *Metrics) Transition(kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind).Inc()
}

func (m *Metrics) DuplicateDropped() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) Queued(queue string) {
	if m == nil {
		return
	}
	m.queued.WithLabelValues(queue).Inc()
}

func (m *Metrics) SessionOpened(kind string) {
	if m == nil {
		return
	}
	m.sessionsOpened.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionClosed(kind string) {
	if m == nil {
		return
	}
	m.sessionsClosed.WithLabelValues(kind).Inc()
}

func (m *Metrics) PromptShown(kind string) {
	if m == nil {
		return
	}
	m.promptsShown.WithLabelValues(kind).Inc()
}

func (m *Metrics) PingPongDetected() {
	if m == nil {
		return
	}
	m.pingPongs.Inc()
}

func (m *Metrics) HeartbeatTick() {
	if m == nil {
		return
	}
	m.heartbeatTicks.Inc()
}

func (m *Metrics) Reconciliation(direction string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(direction).Inc()
}
