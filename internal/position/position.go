// Package position defines the device position source abstraction.
//
// The OS location stack lives behind this interface; the engine only ever
// performs best-effort fetches and must tolerate unavailability.
package position

import (
	"context"
	"errors"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// ErrUnavailable is returned when no position satisfying the constraints
// can be produced. Callers treat this as a degraded case, never fatal.
var ErrUnavailable = errors.New("position unavailable")

// Source provides device positions.
type Source interface {
	// GetCurrentPosition requests a fresh position. accuracyHint is the
	// desired accuracy in meters; implementations may return worse.
	GetCurrentPosition(ctx context.Context, accuracyHint float64) (*models.Position, error)

	// GetLastKnownPosition returns a cached position no older than maxAge
	// and no less accurate than requiredAccuracy, or ErrUnavailable.
	GetLastKnownPosition(ctx context.Context, maxAge time.Duration, requiredAccuracy float64) (*models.Position, error)
}
