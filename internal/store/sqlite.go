// Package store provides storage backends for GeoShift.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetOpenSession(userID string) (*models.Session, error) {
	query := `SELECT id, user_id, fence_id, fence_name, kind, opened_at, closed_at
			  FROM sessions WHERE user_id = ? AND closed_at IS NULL ORDER BY opened_at DESC LIMIT 1`
	sess, err := scanSessionRow(s.db.QueryRow(query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetOpenSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("get open session failed: %w", err)
	}
	return &sess, nil
}

func (s *SQLiteStore) CreateSession(userID, fenceID, fenceName string, kind models.SessionKind) (string, error) {
	open, err := s.GetOpenSession(userID)
	if err != nil {
		return "", err
	}
	if open != nil {
		return "", models.ErrSessionAlreadyOpen
	}

	id := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, user_id, fence_id, fence_name, kind, opened_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, fenceID, fenceName, string(kind), time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore CreateSession failed", "error", err, "userID", userID, "fenceID", fenceID)
		return "", fmt.Errorf("create session failed: %w", err)
	}
	slog.Debug("SQLiteStore CreateSession succeeded", "id", id, "fenceID", fenceID, "kind", kind)
	return id, nil
}

func (s *SQLiteStore) CloseSession(userID string, adjustmentMinutes int) error {
	closedAt := time.Now().Add(-time.Duration(adjustmentMinutes) * time.Minute)
	res, err := s.db.Exec(
		`UPDATE sessions SET closed_at = ? WHERE user_id = ? AND closed_at IS NULL`,
		closedAt, userID,
	)
	if err != nil {
		slog.Error("SQLiteStore CloseSession failed", "error", err, "userID", userID)
		return fmt.Errorf("close session failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close session rows affected failed: %w", err)
	}
	if affected == 0 {
		return models.ErrNoOpenSession
	}
	slog.Debug("SQLiteStore CloseSession succeeded", "userID", userID, "adjustmentMinutes", adjustmentMinutes)
	return nil
}

func (s *SQLiteStore) ListSessions(userID string, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, user_id, fence_id, fence_name, kind, opened_at, closed_at
		 FROM sessions WHERE user_id = ? ORDER BY opened_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		slog.Error("SQLiteStore ListSessions query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions failed: %w", err)
	}
	return sessions, nil
}

func (s *SQLiteStore) SavePending(rec models.PendingRecord) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO pending_actions (user_id, kind, fence_id, fence_name, started_at, deadline)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.UserID, string(rec.Kind), rec.FenceID, rec.FenceName, rec.StartedAt, rec.Deadline,
	)
	if err != nil {
		slog.Error("SQLiteStore SavePending failed", "error", err, "userID", rec.UserID, "kind", rec.Kind)
		return fmt.Errorf("save pending failed: %w", err)
	}
	slog.Debug("SQLiteStore SavePending succeeded", "userID", rec.UserID, "kind", rec.Kind, "deadline", rec.Deadline)
	return nil
}

func (s *SQLiteStore) LoadPending(userID string) (*models.PendingRecord, error) {
	var rec models.PendingRecord
	var kind string
	err := s.db.QueryRow(
		`SELECT user_id, kind, fence_id, fence_name, started_at, deadline FROM pending_actions WHERE user_id = ?`,
		userID,
	).Scan(&rec.UserID, &kind, &rec.FenceID, &rec.FenceName, &rec.StartedAt, &rec.Deadline)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore LoadPending failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("load pending failed: %w", err)
	}
	rec.Kind = models.PendingKind(kind)
	return &rec, nil
}

func (s *SQLiteStore) ClearPending(userID string) error {
	_, err := s.db.Exec(`DELETE FROM pending_actions WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore ClearPending failed", "error", err, "userID", userID)
		return fmt.Errorf("clear pending failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddSkip(userID, fenceID, day string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO skip_days (user_id, fence_id, day) VALUES (?, ?, ?)`,
		userID, fenceID, day,
	)
	if err != nil {
		slog.Error("SQLiteStore AddSkip failed", "error", err, "userID", userID, "fenceID", fenceID)
		return fmt.Errorf("add skip failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IsSkipped(userID, fenceID, day string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM skip_days WHERE user_id = ? AND fence_id = ? AND day = ?`,
		userID, fenceID, day,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("skip check failed: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) PurgeSkipsBefore(day string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM skip_days WHERE day < ?`, day)
	if err != nil {
		return 0, fmt.Errorf("purge skips failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *SQLiteStore) AddSample(sample models.PingPongSample) error {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO pingpong_samples (id, fence_id, kind, observed_at, distance_meters, effective_radius, margin_meters, is_inside, source, gps_accuracy)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.ID, sample.FenceID, string(sample.Kind), sample.Timestamp, sample.DistanceMeters,
		sample.EffectiveRadius, sample.MarginMeters, boolToInt(sample.IsInside), string(sample.Source), sample.GPSAccuracy,
	)
	if err != nil {
		slog.Error("SQLiteStore AddSample failed", "error", err, "fenceID", sample.FenceID)
		return fmt.Errorf("add sample failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentSamples(fenceID string, since time.Time) ([]models.PingPongSample, error) {
	rows, err := s.db.Query(
		`SELECT id, fence_id, kind, observed_at, distance_meters, effective_radius, margin_meters, is_inside, source, gps_accuracy
		 FROM pingpong_samples WHERE fence_id = ? AND observed_at >= ? ORDER BY observed_at ASC`,
		fenceID, since,
	)
	if err != nil {
		slog.Error("SQLiteStore RecentSamples query failed", "error", err, "fenceID", fenceID)
		return nil, fmt.Errorf("recent samples failed: %w", err)
	}
	defer rows.Close()

	var samples []models.PingPongSample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples failed: %w", err)
	}
	return samples, nil
}

func (s *SQLiteStore) PurgeSamplesBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM pingpong_samples WHERE observed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge samples failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *SQLiteStore) ListFences(userID string) ([]models.Fence, error) {
	rows, err := s.db.Query(
		`SELECT id, name, latitude, longitude, radius_meters FROM fences WHERE user_id = ? ORDER BY position ASC`,
		userID,
	)
	if err != nil {
		slog.Error("SQLiteStore ListFences query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("list fences failed: %w", err)
	}
	defer rows.Close()

	var fences []models.Fence
	for rows.Next() {
		var f models.Fence
		if err := rows.Scan(&f.ID, &f.Name, &f.Latitude, &f.Longitude, &f.RadiusMeters); err != nil {
			return nil, fmt.Errorf("scan fence failed: %w", err)
		}
		fences = append(fences, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fences failed: %w", err)
	}
	return fences, nil
}

func (s *SQLiteStore) ReplaceFences(userID string, fences []models.Fence) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace fences failed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM fences WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear fences failed: %w", err)
	}
	for i, f := range fences {
		_, err := tx.Exec(
			`INSERT INTO fences (user_id, id, name, latitude, longitude, radius_meters, position) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			userID, f.ID, f.Name, f.Latitude, f.Longitude, f.RadiusMeters, i,
		)
		if err != nil {
			return fmt.Errorf("insert fence %s failed: %w", f.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace fences failed: %w", err)
	}
	slog.Debug("SQLiteStore ReplaceFences succeeded", "userID", userID, "count", len(fences))
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
