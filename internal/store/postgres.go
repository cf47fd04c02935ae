// Package store provides storage backends for GeoShift.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetOpenSession(userID string) (*models.Session, error) {
	query := `SELECT id, user_id, fence_id, fence_name, kind, opened_at, closed_at
			  FROM sessions WHERE user_id = $1 AND closed_at IS NULL ORDER BY opened_at DESC LIMIT 1`
	sess, err := scanSessionRow(s.db.QueryRow(query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetOpenSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("get open session failed: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) CreateSession(userID, fenceID, fenceName string, kind models.SessionKind) (string, error) {
	open, err := s.GetOpenSession(userID)
	if err != nil {
		return "", err
	}
	if open != nil {
		return "", models.ErrSessionAlreadyOpen
	}

	id := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, user_id, fence_id, fence_name, kind, opened_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, userID, fenceID, fenceName, string(kind), time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore CreateSession failed", "error", err, "userID", userID, "fenceID", fenceID)
		return "", fmt.Errorf("create session failed: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) CloseSession(userID string, adjustmentMinutes int) error {
	closedAt := time.Now().Add(-time.Duration(adjustmentMinutes) * time.Minute)
	res, err := s.db.Exec(
		`UPDATE sessions SET closed_at = $1 WHERE user_id = $2 AND closed_at IS NULL`,
		closedAt, userID,
	)
	if err != nil {
		slog.Error("PostgresStore CloseSession failed", "error", err, "userID", userID)
		return fmt.Errorf("close session failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close session rows affected failed: %w", err)
	}
	if affected == 0 {
		return models.ErrNoOpenSession
	}
	return nil
}

func (s *PostgresStore) ListSessions(userID string, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, user_id, fence_id, fence_name, kind, opened_at, closed_at
		 FROM sessions WHERE user_id = $1 ORDER BY opened_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		slog.Error("PostgresStore ListSessions query failed", "error", err, "userID", userID)
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

func (s *PostgresStore) SavePending(rec models.PendingRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO pending_actions (user_id, kind, fence_id, fence_name, started_at, deadline)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
			kind = EXCLUDED.kind, fence_id = EXCLUDED.fence_id, fence_name = EXCLUDED.fence_name,
			started_at = EXCLUDED.started_at, deadline = EXCLUDED.deadline`,
		rec.UserID, string(rec.Kind), rec.FenceID, rec.FenceName, rec.StartedAt, rec.Deadline,
	)
	if err != nil {
		slog.Error("PostgresStore SavePending failed", "error", err, "userID", rec.UserID, "kind", rec.Kind)
		return fmt.Errorf("save pending failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadPending(userID string) (*models.PendingRecord, error) {
	var rec models.PendingRecord
	var kind string
	err := s.db.QueryRow(
		`SELECT user_id, kind, fence_id, fence_name, started_at, deadline FROM pending_actions WHERE user_id = $1`,
		userID,
	).Scan(&rec.UserID, &kind, &rec.FenceID, &rec.FenceName, &rec.StartedAt, &rec.Deadline)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore LoadPending failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("load pending failed: %w", err)
	}
	rec.Kind = models.PendingKind(kind)
	return &rec, nil
}

func (s *PostgresStore) ClearPending(userID string) error {
	_, err := s.db.Exec(`DELETE FROM pending_actions WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore ClearPending failed", "error", err, "userID", userID)
		return fmt.Errorf("clear pending failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddSkip(userID, fenceID, day string) error {
	_, err := s.db.Exec(
		`INSERT INTO skip_days (user_id, fence_id, day) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		userID, fenceID, day,
	)
	if err != nil {
		slog.Error("PostgresStore AddSkip failed", "error", err, "userID", userID, "fenceID", fenceID)
		return fmt.Errorf("add skip failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsSkipped(userID, fenceID, day string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM skip_days WHERE user_id = $1 AND fence_id = $2 AND day = $3`,
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

func (s *PostgresStore) PurgeSkipsBefore(day string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM skip_days WHERE day < $1`, day)
	if err != nil {
		return 0, fmt.Errorf("purge skips failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *PostgresStore) AddSample(sample models.PingPongSample) error {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO pingpong_samples (id, fence_id, kind, observed_at, distance_meters, effective_radius, margin_meters, is_inside, source, gps_accuracy)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sample.ID, sample.FenceID, string(sample.Kind), sample.Timestamp, sample.DistanceMeters,
		sample.EffectiveRadius, sample.MarginMeters, sample.IsInside, string(sample.Source), sample.GPSAccuracy,
	)
	if err != nil {
		slog.Error("PostgresStore AddSample failed", "error", err, "fenceID", sample.FenceID)
		return fmt.Errorf("add sample failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentSamples(fenceID string, since time.Time) ([]models.PingPongSample, error) {
	rows, err := s.db.Query(
		`SELECT id, fence_id, kind, observed_at, distance_meters, effective_radius, margin_meters, is_inside, source, gps_accuracy
		 FROM pingpong_samples WHERE fence_id = $1 AND observed_at >= $2 ORDER BY observed_at ASC`,
		fenceID, since,
	)
	if err != nil {
		slog.Error("PostgresStore RecentSamples query failed", "error", err, "fenceID", fenceID)
		return nil, fmt.Errorf("recent samples failed: %w", err)
	}
	defer rows.Close()

	var samples []models.PingPongSample
	for rows.Next() {
		var sample models.PingPongSample
		var kind, source string
		err := rows.Scan(
			&sample.ID, &sample.FenceID, &kind, &sample.Timestamp, &sample.DistanceMeters,
			&sample.EffectiveRadius, &sample.MarginMeters, &sample.IsInside, &source, &sample.GPSAccuracy,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sample failed: %w", err)
		}
		sample.Kind = models.TransitionKind(kind)
		sample.Source = models.SampleSource(source)
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples failed: %w", err)
	}
	return samples, nil
}

func (s *PostgresStore) PurgeSamplesBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM pingpong_samples WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge samples failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *PostgresStore) ListFences(userID string) ([]models.Fence, error) {
	rows, err := s.db.Query(
		`SELECT id, name, latitude, longitude, radius_meters FROM fences WHERE user_id = $1 ORDER BY position ASC`,
		userID,
	)
	if err != nil {
		slog.Error("PostgresStore ListFences query failed", "error", err, "userID", userID)
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

func (s *PostgresStore) ReplaceFences(userID string, fences []models.Fence) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace fences failed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM fences WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear fences failed: %w", err)
	}
	for i, f := range fences {
		_, err := tx.Exec(
			`INSERT INTO fences (user_id, id, name, latitude, longitude, radius_meters, position) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			userID, f.ID, f.Name, f.Latitude, f.Longitude, f.RadiusMeters, i,
		)
		if err != nil {
			return fmt.Errorf("insert fence %s failed: %w", f.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace fences failed: %w", err)
	}
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
