// Package store provides storage backends for GeoShift.
//
// It includes an in-memory store for tests, plus SQLite and PostgreSQL
// backends for the session ledger, the persisted pending action, the
// per-day skip list, the ping-pong sample log, and the fence directory.
package store

import (
	"strings"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option configures store creation.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// SessionRepo is the session ledger: open/close work session records.
type SessionRepo interface {
	// GetOpenSession returns the user's open session, or nil if none exists.
	GetOpenSession(userID string) (*models.Session, error)

	// CreateSession opens a new session record and returns its id. Returns
	// models.ErrSessionAlreadyOpen if the user already has an open session.
	CreateSession(userID, fenceID, fenceName string, kind models.SessionKind) (string, error)

	// CloseSession closes the user's open session, moving the close time
	// backward by adjustmentMinutes. Returns models.ErrNoOpenSession if the
	// user has no open session.
	CloseSession(userID string, adjustmentMinutes int) error

	// ListSessions returns the user's sessions, newest first, up to limit.
	ListSessions(userID string, limit int) ([]models.Session, error)
}

// PendingRepo persists the single-slot pending action mirror.
type PendingRepo interface {
	// SavePending stores or replaces the user's pending record.
	SavePending(rec models.PendingRecord) error

	// LoadPending returns the user's pending record, or nil if none exists.
	LoadPending(userID string) (*models.PendingRecord, error)

	// ClearPending removes the user's pending record. Clearing an absent
	// record is not an error.
	ClearPending(userID string) error
}

// SkipRepo persists the per-day set of fences excluded from auto-entry.
type SkipRepo interface {
	// AddSkip marks a fence as skipped for the given day.
	AddSkip(userID, fenceID, day string) error

	// IsSkipped reports whether a fence is skipped for the given day.
	IsSkipped(userID, fenceID, day string) (bool, error)

	// PurgeSkipsBefore deletes skip rows older than the given day key and
	// returns the number of rows removed.
	PurgeSkipsBefore(day string) (int, error)
}

// SampleRepo persists the append-only ping-pong sample log.
type SampleRepo interface {
	// AddSample appends a containment evaluation sample.
	AddSample(s models.PingPongSample) error

	// RecentSamples returns samples for a fence observed at or after since,
	// oldest first.
	RecentSamples(fenceID string, since time.Time) ([]models.PingPongSample, error)

	// PurgeSamplesBefore deletes samples observed before the cutoff and
	// returns the number of rows removed.
	PurgeSamplesBefore(cutoff time.Time) (int, error)
}

// FenceRepo persists the fence directory.
type FenceRepo interface {
	// ListFences returns the user's fences in configuration order.
	ListFences(userID string) ([]models.Fence, error)

	// ReplaceFences replaces the user's fence set wholesale.
	ReplaceFences(userID string, fences []models.Fence) error
}

// Store aggregates all repositories behind one backend.
type Store interface {
	SessionRepo
	PendingRepo
	SkipRepo
	SampleRepo
	FenceRepo

	// Close releases the backend's resources.
	Close() error
}
