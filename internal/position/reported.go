// Package position provides the daemon's production source: positions pushed
// by the device's location stack over the API.
package position

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// DefaultStaleAfter bounds how old a pushed report may be and still serve a
// GetCurrentPosition call.
const DefaultStaleAfter = 2 * time.Minute

// ReportedSource caches the latest position pushed by the platform. The
// daemon cannot poll device hardware itself; the location stack reports
// fixes and the engine reads the freshest one.
type ReportedSource struct {
	mu         sync.Mutex
	latest     *models.Position
	staleAfter time.Duration
	now        func() time.Time
}

// Compile-time check that ReportedSource implements Source.
var _ Source = (*ReportedSource)(nil)

// NewReportedSource creates a reported source. A zero staleAfter uses the
// default.
func NewReportedSource(staleAfter time.Duration) *ReportedSource {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &ReportedSource{staleAfter: staleAfter, now: time.Now}
}

// Report stores a pushed position fix. A zero ObservedAt is stamped now.
func (s *ReportedSource) Report(pos models.Position) {
	if pos.ObservedAt.IsZero() {
		pos.ObservedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest != nil && pos.ObservedAt.Before(s.latest.ObservedAt) {
		slog.Debug("ReportedSource dropped out-of-order fix", "observed_at", pos.ObservedAt)
		return
	}
	s.latest = &pos
}

func (s *ReportedSource) GetCurrentPosition(ctx context.Context, accuracyHint float64) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil || s.now().Sub(s.latest.ObservedAt) > s.staleAfter {
		return nil, ErrUnavailable
	}
	pos := *s.latest
	return &pos, nil
}

func (s *ReportedSource) GetLastKnownPosition(ctx context.Context, maxAge time.Duration, requiredAccuracy float64) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil, ErrUnavailable
	}
	if s.now().Sub(s.latest.ObservedAt) > maxAge {
		return nil, ErrUnavailable
	}
	if requiredAccuracy > 0 && s.latest.AccuracyMeters > requiredAccuracy {
		return nil, ErrUnavailable
	}
	pos := *s.latest
	return &pos, nil
}
