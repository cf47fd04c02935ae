// Package engine provides the configuration for the session engine.
package engine

import "time"

// Default tunables for the session engine.
const (
	// DefaultEntryTimeout is how long an entry prompt waits before the
	// session starts automatically.
	DefaultEntryTimeout = 5 * time.Minute
	// DefaultExitTimeout is how long an exit prompt waits before the
	// session stops automatically.
	DefaultExitTimeout = 5 * time.Minute
	// DefaultReturnTimeout is how long a return prompt waits before the
	// session resumes automatically.
	DefaultReturnTimeout = 2 * time.Minute
	// DefaultPauseDuration is the pause countdown length.
	DefaultPauseDuration = 30 * time.Minute
	// DefaultAlarmWindow is the response window of the pause-expiry alarm.
	DefaultAlarmWindow = 2 * time.Minute
	// DefaultVigilanceChecks bounds the re-checks after an exit timeout
	// found the device still inside with hysteresis.
	DefaultVigilanceChecks = 5
	// DefaultVigilanceSpacing is the spacing between vigilance re-checks.
	DefaultVigilanceSpacing = time.Minute
	// DefaultDedupWindow suppresses repeated (fence, kind) signals.
	DefaultDedupWindow = 10 * time.Second
	// DefaultQueueCap bounds the boot gate and reconfigure queues.
	DefaultQueueCap = 10
	// DefaultQueueMaxAge drops queued transitions too old to act on.
	DefaultQueueMaxAge = 30 * time.Second
	// DefaultDrainDebounce delays the reconfigure-queue drain after a
	// reconfiguration ends.
	DefaultDrainDebounce = 500 * time.Millisecond
	// DefaultLowAccuracyThreshold flags GPS fixes worse than this (meters).
	DefaultLowAccuracyThreshold = 50
	// DefaultLowAccuracyWindow is how long a low-accuracy event keeps the
	// heartbeat on the shortened interval.
	DefaultLowAccuracyWindow = 10 * time.Minute
	// DefaultPingPongWindow is the rolling oscillation-detection window.
	DefaultPingPongWindow = 10 * time.Minute
	// DefaultPingPongThreshold is the alternation count that flags
	// ping-pong.
	DefaultPingPongThreshold = 4
	// DefaultCachedPositionMaxAge bounds the staleness of the cached
	// position used for transition enrichment.
	DefaultCachedPositionMaxAge = 2 * time.Minute
	// DefaultCachedPositionAccuracy bounds the accuracy of the cached
	// position used for transition enrichment (meters).
	DefaultCachedPositionAccuracy = 100
)

// Config holds the engine tunables. Zero values are replaced with defaults
// by New.
type Config struct {
	UserID string

	EntryTimeout     time.Duration
	ExitTimeout      time.Duration
	ReturnTimeout    time.Duration
	PauseDuration    time.Duration
	AlarmWindow      time.Duration
	VigilanceChecks  int
	VigilanceSpacing time.Duration

	// CloseAdjustmentMinutes moves the session close time backward to
	// compensate for the exit confirmation delay.
	CloseAdjustmentMinutes int

	DedupWindow   time.Duration
	QueueCap      int
	QueueMaxAge   time.Duration
	DrainDebounce time.Duration

	LowAccuracyThreshold   float64
	LowAccuracyWindow      time.Duration
	PingPongWindow         time.Duration
	PingPongThreshold      int
	CachedPositionMaxAge   time.Duration
	CachedPositionAccuracy float64
}

// Option configures the engine.
type Option func(*Config)

// WithUserID sets the user whose sessions the engine manages.
func WithUserID(userID string) Option {
	return func(c *Config) { c.UserID = userID }
}

// WithEntryTimeout sets the entry prompt timeout.
func WithEntryTimeout(d time.Duration) Option {
	return func(c *Config) { c.EntryTimeout = d }
}

// WithExitTimeout sets the exit prompt timeout.
func WithExitTimeout(d time.Duration) Option {
	return func(c *Config) { c.ExitTimeout = d }
}

// WithReturnTimeout sets the return prompt timeout.
func WithReturnTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReturnTimeout = d }
}

// WithPauseDuration sets the pause countdown length.
func WithPauseDuration(d time.Duration) Option {
	return func(c *Config) { c.PauseDuration = d }
}

// WithAlarmWindow sets the pause-expiry alarm response window.
func WithAlarmWindow(d time.Duration) Option {
	return func(c *Config) { c.AlarmWindow = d }
}

// WithCloseAdjustment sets the backward close-time adjustment in minutes.
func WithCloseAdjustment(minutes int) Option {
	return func(c *Config) { c.CloseAdjustmentMinutes = minutes }
}

// WithVigilance sets the bounded exit re-check loop parameters.
func WithVigilance(checks int, spacing time.Duration) Option {
	return func(c *Config) {
		c.VigilanceChecks = checks
		c.VigilanceSpacing = spacing
	}
}

// WithQueueLimits sets the boot gate / reconfigure queue bounds.
func WithQueueLimits(cap int, maxAge time.Duration) Option {
	return func(c *Config) {
		c.QueueCap = cap
		c.QueueMaxAge = maxAge
	}
}

// WithDedupWindow sets the duplicate-suppression window.
func WithDedupWindow(d time.Duration) Option {
	return func(c *Config) { c.DedupWindow = d }
}

// WithDrainDebounce sets the reconfigure-queue drain debounce.
func WithDrainDebounce(d time.Duration) Option {
	return func(c *Config) { c.DrainDebounce = d }
}

// applyDefaults fills unset fields with the default tunables.
func (c *Config) applyDefaults() {
	if c.UserID == "" {
		c.UserID = "default"
	}
	if c.EntryTimeout == 0 {
		c.EntryTimeout = DefaultEntryTimeout
	}
	if c.ExitTimeout == 0 {
		c.ExitTimeout = DefaultExitTimeout
	}
	if c.ReturnTimeout == 0 {
		c.ReturnTimeout = DefaultReturnTimeout
	}
	if c.PauseDuration == 0 {
		c.PauseDuration = DefaultPauseDuration
	}
	if c.AlarmWindow == 0 {
		c.AlarmWindow = DefaultAlarmWindow
	}
	if c.VigilanceChecks == 0 {
		c.VigilanceChecks = DefaultVigilanceChecks
	}
	if c.VigilanceSpacing == 0 {
		c.VigilanceSpacing = DefaultVigilanceSpacing
	}
	if c.DedupWindow == 0 {
		c.DedupWindow = DefaultDedupWindow
	}
	if c.QueueCap == 0 {
		c.QueueCap = DefaultQueueCap
	}
	if c.QueueMaxAge == 0 {
		c.QueueMaxAge = DefaultQueueMaxAge
	}
	if c.DrainDebounce == 0 {
		c.DrainDebounce = DefaultDrainDebounce
	}
	if c.LowAccuracyThreshold == 0 {
		c.LowAccuracyThreshold = DefaultLowAccuracyThreshold
	}
	if c.LowAccuracyWindow == 0 {
		c.LowAccuracyWindow = DefaultLowAccuracyWindow
	}
	if c.PingPongWindow == 0 {
		c.PingPongWindow = DefaultPingPongWindow
	}
	if c.PingPongThreshold == 0 {
		c.PingPongThreshold = DefaultPingPongThreshold
	}
	if c.CachedPositionMaxAge == 0 {
		c.CachedPositionMaxAge = DefaultCachedPositionMaxAge
	}
	if c.CachedPositionAccuracy == 0 {
		c.CachedPositionAccuracy = DefaultCachedPositionAccuracy
	}
}
