// Package recovery provides generic startup recovery orchestration for
// GeoShift to handle application restarts gracefully. Components register
// their own recovery logic; the manager runs them all once at launch.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
)

// Recoverable defines the interface for components that can recover their state
type Recoverable interface {
	// RecoverState is called during application startup to restore component state
	RecoverState(ctx context.Context) error
}

// Func adapts a plain function to the Recoverable interface.
type Func func(ctx context.Context) error

// RecoverState calls the wrapped function.
func (f Func) RecoverState(ctx context.Context) error {
	return f(ctx)
}

// Manager orchestrates recovery of all registered components
type Manager struct {
	recoverables []Recoverable
}

// NewManager creates a new recovery manager
func NewManager() *Manager {
	return &Manager{recoverables: make([]Recoverable, 0)}
}

// Register adds a component that can be recovered
func (m *Manager) Register(r Recoverable) {
	m.recoverables = append(m.recoverables, r)
}

// RecoverAll performs recovery of all registered components. Every component
// runs even if an earlier one fails; the combined outcome is the error.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Starting application recovery", "components", len(m.recoverables))

	recoveredCount := 0
	errorCount := 0

	for _, recoverable := range m.recoverables {
		if err := recoverable.RecoverState(ctx); err != nil {
			slog.Error("Component recovery failed", "error", err, "component", fmt.Sprintf("%T", recoverable))
			errorCount++
			continue
		}
		recoveredCount++
	}

	slog.Info("Application recovery completed", "recovered", recoveredCount, "errors", errorCount)

	if errorCount > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", errorCount, len(m.recoverables))
	}

	return nil
}
