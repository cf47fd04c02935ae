// Package models defines the core data structures for GeoShift.
//
// It includes types for fences, transitions, sessions, and the persisted
// pending action, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// TransitionKind identifies the direction of a geofence transition.
type TransitionKind string

const (
	// TransitionEnter is delivered when the device enters a fence.
	TransitionEnter TransitionKind = "enter"
	// TransitionExit is delivered when the device leaves a fence.
	TransitionExit TransitionKind = "exit"
)

// Validation constants for input validation
const (
	// MaxFenceNameLength defines the maximum allowed length for a fence name
	MaxFenceNameLength = 200
	// MinFenceRadiusMeters defines the smallest monitorable fence radius
	MinFenceRadiusMeters = 10
	// MaxFenceRadiusMeters defines the largest monitorable fence radius
	MaxFenceRadiusMeters = 100_000
	// UnknownFenceName is substituted when a fence id cannot be resolved
	UnknownFenceName = "Unknown Location"
)

// Error variables for better error handling and testability
var (
	ErrEmptyFenceID       = errors.New("fence id cannot be empty")
	ErrEmptyUserID        = errors.New("user id cannot be empty")
	ErrInvalidKind        = errors.New("invalid transition kind")
	ErrInvalidLatitude    = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude   = errors.New("longitude must be between -180 and 180")
	ErrInvalidRadius      = errors.New("fence radius out of range")
	ErrFenceNameTooLong   = errors.New("fence name exceeds maximum length")
	ErrNoOpenSession      = errors.New("no open session")
	ErrSessionAlreadyOpen = errors.New("a session is already open")
)

// IsValidTransitionKind checks if the given transition kind is supported.
func IsValidTransitionKind(k TransitionKind) bool {
	switch k {
	case TransitionEnter, TransitionExit:
		return true
	default:
		return false
	}
}

// Fence is a named circular geographic region. Fences are replaced wholesale
// on every reconfiguration and never partially mutated.
type Fence struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Validate performs validation on a Fence structure.
func (f *Fence) Validate() error {
	if f.ID == "" {
		return ErrEmptyFenceID
	}
	if len(f.Name) > MaxFenceNameLength {
		return ErrFenceNameTooLong
	}
	if f.Latitude < -90 || f.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if f.Longitude < -180 || f.Longitude > 180 {
		return ErrInvalidLongitude
	}
	if f.RadiusMeters < MinFenceRadiusMeters || f.RadiusMeters > MaxFenceRadiusMeters {
		return ErrInvalidRadius
	}
	return nil
}

// Position is a device position as reported by the position source.
type Position struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	ObservedAt     time.Time `json:"observed_at"`
}

// Validate performs validation on a Position structure.
func (p *Position) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// RawTransition is an OS-delivered (or heartbeat-synthesized) geofence
// transition before deduplication and fence resolution. Consumed exactly once.
type RawTransition struct {
	FenceID    string         `json:"fence_id"`
	Kind       TransitionKind `json:"kind"`
	ObservedAt time.Time      `json:"observed_at"`
}

// Validate performs validation on a RawTransition structure.
func (t *RawTransition) Validate() error {
	if t.FenceID == "" {
		return ErrEmptyFenceID
	}
	if !IsValidTransitionKind(t.Kind) {
		return ErrInvalidKind
	}
	return nil
}

// GeofenceEvent is a confirmed transition after dedup and fence resolution,
// ready for the pending-action state machine.
type GeofenceEvent struct {
	FenceID    string         `json:"fence_id"`
	FenceName  string         `json:"fence_name"`
	Kind       TransitionKind `json:"kind"`
	ObservedAt time.Time      `json:"observed_at"`
	// Position is the best-effort enrichment position; nil when unavailable.
	Position *Position `json:"position,omitempty"`
}

// SampleSource identifies which pipeline produced a ping-pong sample.
type SampleSource string

const (
	// SampleSourceGeofence marks samples produced by OS transition callbacks.
	SampleSourceGeofence SampleSource = "geofence"
	// SampleSourceHeartbeat marks samples produced by the heartbeat re-check.
	SampleSourceHeartbeat SampleSource = "heartbeat"
)

// PingPongSample is an append-only audit record of a single containment
// evaluation, used to detect rapid enter/exit oscillation at fence boundaries.
type PingPongSample struct {
	ID              string         `json:"id"`
	FenceID         string         `json:"fence_id"`
	Kind            TransitionKind `json:"kind"`
	Timestamp       time.Time      `json:"timestamp"`
	DistanceMeters  float64        `json:"distance_meters"`
	EffectiveRadius float64        `json:"effective_radius"`
	MarginMeters    float64        `json:"margin_meters"`
	IsInside        bool           `json:"is_inside"`
	Source          SampleSource   `json:"source"`
	GPSAccuracy     float64        `json:"gps_accuracy"`
}

// SessionKind records how a session record came to exist.
type SessionKind string

const (
	// SessionKindAuto is a session opened by prompt timeout or confirmation.
	SessionKindAuto SessionKind = "auto"
	// SessionKindManual is a session opened by an explicit user action.
	SessionKindManual SessionKind = "manual"
	// SessionKindReconciled is a session opened or closed by the heartbeat's
	// missed-entry / missed-exit consistency reconciliation.
	SessionKindReconciled SessionKind = "reconciled"
)

// Session is a work session record tied to a fence.
type Session struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	FenceID   string      `json:"fence_id"`
	FenceName string      `json:"fence_name"`
	Kind      SessionKind `json:"kind"`
	OpenedAt  time.Time   `json:"opened_at"`
	ClosedAt  *time.Time  `json:"closed_at,omitempty"`
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool {
	return s.ClosedAt == nil
}

// PendingKind identifies which timer-bearing state a persisted pending
// record mirrors.
type PendingKind string

const (
	PendingEnter  PendingKind = "enter"
	PendingExit   PendingKind = "exit"
	PendingReturn PendingKind = "return"
	PendingPause  PendingKind = "pause"
	PendingAlarm  PendingKind = "alarm"
)

// PendingRecord is the persisted mirror of the live pending action. It must
// survive process restart so a relaunched background task can resolve an
// expired action by deadline comparison alone.
type PendingRecord struct {
	UserID    string      `json:"user_id"`
	Kind      PendingKind `json:"kind"`
	FenceID   string      `json:"fence_id"`
	FenceName string      `json:"fence_name"`
	StartedAt time.Time   `json:"started_at"`
	Deadline  time.Time   `json:"deadline"`
}

// Expired reports whether the record's deadline has passed at the given time.
func (r *PendingRecord) Expired(now time.Time) bool {
	return now.After(r.Deadline)
}

// HeartbeatState is the process-wide adaptive heartbeat interval and the
// reason it was chosen. Recomputed after every transition and every tick.
type HeartbeatState struct {
	Interval time.Duration `json:"interval"`
	Reason   string        `json:"reason"`
}

// PendingStatus is the externally visible summary of the live pending action.
type PendingStatus struct {
	Kind      PendingKind `json:"kind"`
	FenceID   string      `json:"fence_id"`
	FenceName string      `json:"fence_name"`
	StartedAt time.Time   `json:"started_at"`
	Deadline  time.Time   `json:"deadline"`
}

// PauseStatus is the externally visible summary of an active pause.
type PauseStatus struct {
	FenceID   string    `json:"fence_id"`
	FenceName string    `json:"fence_name"`
	StartedAt time.Time `json:"started_at"`
	Alarm     bool      `json:"alarm"`
}

// EngineStatus is the snapshot returned by the engine's Status operation.
type EngineStatus struct {
	MonitoringActive  bool           `json:"monitoring_active"`
	HeartbeatInterval time.Duration  `json:"heartbeat_interval"`
	IntervalReason    string         `json:"interval_reason"`
	Pending           *PendingStatus `json:"pending,omitempty"`
	Pause             *PauseStatus   `json:"pause,omitempty"`
}

// DayKey formats a time as the per-day key used by the skip list.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
