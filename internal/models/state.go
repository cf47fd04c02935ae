// Package models defines engine state, prompt, and user action identifiers
// to avoid circular imports.
package models

// EngineState represents the pending-action state machine's current state.
type EngineState string

// State constants for the pending-action state machine.
const (
	StateIdle         EngineState = "IDLE"
	StatePendingEnter EngineState = "PENDING_ENTER"
	StatePendingExit  EngineState = "PENDING_EXIT"
	StatePendingRetrn EngineState = "PENDING_RETURN"
	StatePaused       EngineState = "PAUSED"
	StatePauseAlarm   EngineState = "PAUSE_ALARM"
)

// PromptKind identifies which user-facing prompt a notification carries.
type PromptKind string

const (
	// PromptEnter asks whether to start a session after an enter transition.
	PromptEnter PromptKind = "enter"
	// PromptExit asks whether to stop a session after an exit transition.
	PromptExit PromptKind = "exit"
	// PromptReturn asks whether to resume after re-entering during a pause.
	PromptReturn PromptKind = "return"
	// PromptPauseAlarm is the urgent alarm shown when a pause countdown expires.
	PromptPauseAlarm PromptKind = "pause_alarm"
)

// UserAction identifies the action a user took on a prompt.
type UserAction string

const (
	ActionStart      UserAction = "start"
	ActionSkipToday  UserAction = "skip_today"
	ActionOK         UserAction = "ok"
	ActionPause      UserAction = "pause"
	ActionResume     UserAction = "resume"
	ActionStop       UserAction = "stop"
	ActionSnooze     UserAction = "snooze"
	ActionDefaultTap UserAction = "default_tap"
)

// IsValidUserAction checks if the given user action is supported.
func IsValidUserAction(a UserAction) bool {
	switch a {
	case ActionStart, ActionSkipToday, ActionOK, ActionPause,
		ActionResume, ActionStop, ActionSnooze, ActionDefaultTap:
		return true
	default:
		return false
	}
}

// EngineEventKind identifies an outbound engine event.
type EngineEventKind string

const (
	EventSessionOpened  EngineEventKind = "session_opened"
	EventSessionClosed  EngineEventKind = "session_closed"
	EventPromptShown    EngineEventKind = "prompt_shown"
	EventPromptResolved EngineEventKind = "prompt_resolved"
	EventPauseStarted   EngineEventKind = "pause_started"
	EventPauseEnded     EngineEventKind = "pause_ended"
	EventPingPong       EngineEventKind = "ping_pong"
)

// EngineEvent is a typed outbound event emitted by the engine so callers can
// observe state changes without registering mutable callbacks.
type EngineEvent struct {
	Kind      EngineEventKind `json:"kind"`
	FenceID   string          `json:"fence_id,omitempty"`
	FenceName string          `json:"fence_name,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Prompt    PromptKind      `json:"prompt,omitempty"`
	Action    UserAction      `json:"action,omitempty"`
	Detail    string          `json:"detail,omitempty"`
}
