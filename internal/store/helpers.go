package store

import (
	"database/sql"

	"github.com/BTreeMap/GeoShift/internal/models"
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanSession scans a Session from sql.Rows.
func scanSession(rows *sql.Rows) (models.Session, error) {
	var sess models.Session
	var kind string
	var closedAt sql.NullTime
	err := rows.Scan(&sess.ID, &sess.UserID, &sess.FenceID, &sess.FenceName, &kind, &sess.OpenedAt, &closedAt)
	if err != nil {
		return sess, err
	}
	sess.Kind = models.SessionKind(kind)
	if closedAt.Valid {
		sess.ClosedAt = &closedAt.Time
	}
	return sess, nil
}

// scanSessionRow scans a Session from a single sql.Row.
func scanSessionRow(row *sql.Row) (models.Session, error) {
	var sess models.Session
	var kind string
	var closedAt sql.NullTime
	err := row.Scan(&sess.ID, &sess.UserID, &sess.FenceID, &sess.FenceName, &kind, &sess.OpenedAt, &closedAt)
	if err != nil {
		return sess, err
	}
	sess.Kind = models.SessionKind(kind)
	if closedAt.Valid {
		sess.ClosedAt = &closedAt.Time
	}
	return sess, nil
}

// scanSample scans a PingPongSample from sql.Rows.
func scanSample(rows *sql.Rows) (models.PingPongSample, error) {
	var sample models.PingPongSample
	var kind, source string
	var isInside int
	err := rows.Scan(
		&sample.ID, &sample.FenceID, &kind, &sample.Timestamp, &sample.DistanceMeters,
		&sample.EffectiveRadius, &sample.MarginMeters, &isInside, &source, &sample.GPSAccuracy,
	)
	if err != nil {
		return sample, err
	}
	sample.Kind = models.TransitionKind(kind)
	sample.Source = models.SampleSource(source)
	sample.IsInside = isInside != 0
	return sample, nil
}
