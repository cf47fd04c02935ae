// Package position provides a fake source for tests and the demo entry.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// FakeSource is a controllable position source for tests.
type FakeSource struct {
	mu      sync.Mutex
	current *models.Position
	err     error

	// CurrentCalls counts GetCurrentPosition invocations.
	CurrentCalls int
	// LastKnownCalls counts GetLastKnownPosition invocations.
	LastKnownCalls int
}

// Compile-time check that FakeSource implements Source.
var _ Source = (*FakeSource)(nil)

// NewFakeSource creates a fake source with no position set.
func NewFakeSource() *FakeSource {
	return &FakeSource{}
}

// Set sets the position returned by subsequent fetches.
func (f *FakeSource) Set(pos models.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pos.ObservedAt.IsZero() {
		pos.ObservedAt = time.Now()
	}
	f.current = &pos
	f.err = nil
}

// SetUnavailable makes subsequent fetches fail with ErrUnavailable.
func (f *FakeSource) SetUnavailable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = nil
	f.err = ErrUnavailable
}

func (f *FakeSource) GetCurrentPosition(ctx context.Context, accuracyHint float64) (*models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CurrentCalls++
	if f.err != nil || f.current == nil {
		return nil, ErrUnavailable
	}
	pos := *f.current
	return &pos, nil
}

func (f *FakeSource) GetLastKnownPosition(ctx context.Context, maxAge time.Duration, requiredAccuracy float64) (*models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastKnownCalls++
	if f.err != nil || f.current == nil {
		return nil, ErrUnavailable
	}
	if time.Since(f.current.ObservedAt) > maxAge {
		return nil, ErrUnavailable
	}
	if requiredAccuracy > 0 && f.current.AccuracyMeters > requiredAccuracy {
		return nil, ErrUnavailable
	}
	pos := *f.current
	return &pos, nil
}
