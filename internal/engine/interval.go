// Package engine provides the adaptive heartbeat interval policy.
package engine

import (
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// Heartbeat interval tiers. Every tier is at most IntervalNormal: the policy
// only ever shortens polling, never stretches it.
const (
	// IntervalNormal is the relaxed polling period with nothing at risk.
	IntervalNormal = 5 * time.Minute
	// IntervalPendingEnter applies while an entry or return prompt is open.
	IntervalPendingEnter = time.Minute
	// IntervalPendingExit applies while an exit prompt is open; a session
	// left open by a missed resolution is the costlier failure.
	IntervalPendingExit = 30 * time.Second
	// IntervalPaused applies during a pause so the expiry alarm cannot be
	// missed by much even if the in-memory timer dies.
	IntervalPaused = time.Minute
	// IntervalLowAccuracy applies after a recent low-accuracy GPS event.
	IntervalLowAccuracy = 2 * time.Minute
)

// Interval reasons reported in the engine status.
const (
	ReasonNormal       = "normal"
	ReasonPendingEnter = "pending_enter"
	ReasonPendingExit  = "pending_exit"
	ReasonPaused       = "paused"
	ReasonLowAccuracy  = "low_accuracy"
)

// IntervalInputs are the inputs to the adaptive interval policy.
type IntervalInputs struct {
	// Pending is the live pending action kind, or empty when none.
	Pending models.PendingKind
	// Paused reports whether a pause is active.
	Paused bool
	// LowAccuracyRecent reports whether a low-accuracy GPS event occurred
	// within the low-accuracy window.
	LowAccuracyRecent bool
}

// ChooseInterval maps the engine's risk state to a heartbeat interval.
// Pure function: re-evaluated after every geofence event and heartbeat tick.
func ChooseInterval(in IntervalInputs) models.HeartbeatState {
	switch in.Pending {
	case models.PendingExit:
		return models.HeartbeatState{Interval: IntervalPendingExit, Reason: ReasonPendingExit}
	case models.PendingEnter, models.PendingReturn:
		return models.HeartbeatState{Interval: IntervalPendingEnter, Reason: ReasonPendingEnter}
	case models.PendingPause, models.PendingAlarm:
		return models.HeartbeatState{Interval: IntervalPaused, Reason: ReasonPaused}
	}
	if in.Paused {
		return models.HeartbeatState{Interval: IntervalPaused, Reason: ReasonPaused}
	}
	if in.LowAccuracyRecent {
		return models.HeartbeatState{Interval: IntervalLowAccuracy, Reason: ReasonLowAccuracy}
	}
	return models.HeartbeatState{Interval: IntervalNormal, Reason: ReasonNormal}
}
