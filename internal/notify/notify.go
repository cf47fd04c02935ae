// Package notify defines the user-facing prompt delivery abstraction.
//
// A notification carries a prompt kind, the fence it concerns, and the
// timeout after which the engine auto-resolves. User responses come back as
// action identifiers through the engine's OnUserAction operation.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// Service defines a pluggable prompt delivery abstraction.
type Service interface {
	// Schedule delivers a prompt for the given fence and returns a handle
	// that can be used to cancel it.
	Schedule(ctx context.Context, kind models.PromptKind, fenceID, fenceName string, timeout time.Duration) (string, error)

	// Cancel withdraws a previously scheduled prompt. Canceling an unknown
	// or already-resolved handle is not an error.
	Cancel(handle string) error

	// Stop stops background processing and cleans up resources.
	Stop() error
}

// promptBody returns the user-visible message for a prompt kind.
func promptBody(kind models.PromptKind, fenceName string, timeout time.Duration) string {
	minutes := int(timeout.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	switch kind {
	case models.PromptEnter:
		return fmt.Sprintf("You arrived at %s. Start your work session? Starts automatically in %d min.", fenceName, minutes)
	case models.PromptExit:
		return fmt.Sprintf("You left %s. Stop your work session? Stops automatically in %d min.", fenceName, minutes)
	case models.PromptReturn:
		return fmt.Sprintf("Welcome back at %s. Resume your session? Resumes automatically in %d min.", fenceName, minutes)
	case models.PromptPauseAlarm:
		return fmt.Sprintf("Your break at %s has run out. Still there? Reply within %d min or the session ends.", fenceName, minutes)
	default:
		return fmt.Sprintf("GeoShift: action required for %s", fenceName)
	}
}
