// Package models defines the timer abstraction shared by the engine and
// recovery so timers can be substituted with deterministic fakes in tests.
package models

import "time"

// Timer schedules cancelable deferred function calls.
type Timer interface {
	// ScheduleAfter schedules fn to run after delay and returns a handle.
	ScheduleAfter(delay time.Duration, fn func()) (string, error)

	// Cancel cancels a scheduled function by handle. Canceling an unknown or
	// already-fired handle is not an error.
	Cancel(id string) error

	// Stop cancels all scheduled timers.
	Stop()

	// ListActive returns information about all active timers.
	ListActive() []TimerInfo
}

// TimerInfo describes an active timer.
type TimerInfo struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Remaining   string    `json:"remaining"`
	Description string    `json:"description"`
}
