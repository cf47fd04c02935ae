// Package scheduler provides the periodic maintenance jobs.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/BTreeMap/GeoShift/internal/engine"
	"github.com/BTreeMap/GeoShift/internal/models"
	"github.com/BTreeMap/GeoShift/internal/store"
)

// Maintenance cron expressions.
const (
	// skipRolloverExpr runs shortly after midnight so yesterday's skip
	// entries never suppress today's prompts.
	skipRolloverExpr = "5 0 * * *"
	// sampleRetentionExpr prunes the ping-pong sample log hourly.
	sampleRetentionExpr = "0 * * * *"
	// dedupPurgeExpr bounds the dedup table every ten minutes.
	dedupPurgeExpr = "*/10 * * * *"
)

// DefaultSampleRetention is how long ping-pong samples are kept. The
// oscillation window is minutes; a day of samples is plenty for debugging.
const DefaultSampleRetention = 24 * time.Hour

// Compile-time check that TaskRegistry can drive the heartbeat task.
var _ engine.TaskRegistrar = (*TaskRegistry)(nil)

// Maintenance owns the recurring cleanup jobs for the engine's stores.
type Maintenance struct {
	store           store.Store
	engine          *engine.Engine
	sampleRetention time.Duration
}

// NewMaintenance creates the maintenance job set. A zero sampleRetention
// uses the default.
func NewMaintenance(st store.Store, eng *engine.Engine, sampleRetention time.Duration) *Maintenance {
	if sampleRetention <= 0 {
		sampleRetention = DefaultSampleRetention
	}
	return &Maintenance{store: st, engine: eng, sampleRetention: sampleRetention}
}

// Register installs the maintenance jobs on the scheduler.
func (m *Maintenance) Register(s *Scheduler) error {
	if err := s.AddJob(skipRolloverExpr, m.rolloverSkips); err != nil {
		return err
	}
	if err := s.AddJob(sampleRetentionExpr, m.pruneSamples); err != nil {
		return err
	}
	if err := s.AddJob(dedupPurgeExpr, m.purgeDedup); err != nil {
		return err
	}
	slog.Info("Maintenance jobs registered", "sample_retention", m.sampleRetention)
	return nil
}

// rolloverSkips deletes skip entries from before today.
func (m *Maintenance) rolloverSkips() {
	today := models.DayKey(time.Now())
	removed, err := m.store.PurgeSkipsBefore(today)
	if err != nil {
		slog.Error("Maintenance failed to purge skip list", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Maintenance purged expired skips", "removed", removed, "before", today)
	}
}

// pruneSamples deletes ping-pong samples older than the retention window.
func (m *Maintenance) pruneSamples() {
	cutoff := time.Now().Add(-m.sampleRetention)
	removed, err := m.store.PurgeSamplesBefore(cutoff)
	if err != nil {
		slog.Error("Maintenance failed to purge samples", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Maintenance purged old samples", "removed", removed, "cutoff", cutoff)
	}
}

// purgeDedup drops stale dedup entries.
func (m *Maintenance) purgeDedup() {
	if removed := m.engine.PurgeDedup(); removed > 0 {
		slog.Debug("Maintenance purged dedup entries", "removed", removed)
	}
}
