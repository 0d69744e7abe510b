// Package store persists metric readings received by the backend in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
    id          TEXT PRIMARY KEY,
    metric      TEXT NOT NULL,
    value       REAL NOT NULL,
    device      TEXT NOT NULL DEFAULT '',
    frame       INTEGER NOT NULL DEFAULT 0,
    recorded_at TEXT NOT NULL,
    received_at TEXT NOT NULL,
    context     TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_readings_metric ON readings(metric, received_at);
`

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrEmptyMetric is returned when a reading has no metric name.
var ErrEmptyMetric = errors.New("store: empty metric")

// Reading is one telemetry sample as received by the backend.
type Reading struct {
	ID        string         `json:"id"`
	Metric    string         `json:"metric"`
	Value     float64        `json:"value"`
	Device    string         `json:"device"`
	Frame     int            `json:"frame"`
	Timestamp time.Time      `json:"timestamp"`
	Received  time.Time      `json:"received_at"`
	Context   map[string]any `json:"context,omitempty"`
}

// Store manages the readings table.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// one writer; sqlite serialises anyway and :memory: is per-connection
	db.SetMaxOpenConns(1)

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates tables on db and returns a Store.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("readings schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert stores r, assigning an ID and receive time when missing.
// It returns the stored reading.
func (s *Store) Insert(ctx context.Context, r Reading) (Reading, error) {
	if r.Metric == "" {
		return r, ErrEmptyMetric
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Received.IsZero() {
		r.Received = time.Now().UTC()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = r.Received
	}
	if r.Context == nil {
		r.Context = map[string]any{}
	}
	ctxJSON, err := json.Marshal(r.Context)
	if err != nil {
		return r, fmt.Errorf("encode context: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO readings (id, metric, value, device, frame, recorded_at, received_at, context)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Metric, r.Value, r.Device, r.Frame,
		r.Timestamp.UTC().Format(timeLayout),
		r.Received.UTC().Format(timeLayout),
		string(ctxJSON),
	)
	if err != nil {
		return r, fmt.Errorf("insert reading: %w", err)
	}
	return r, nil
}

// Recent returns up to limit of the newest readings for metric, oldest
// first.
func (s *Store) Recent(ctx context.Context, metric string, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, metric, value, device, frame, recorded_at, received_at, context
		 FROM (
		   SELECT rowid AS seq, * FROM readings WHERE metric = ?
		   ORDER BY received_at DESC, seq DESC
		   LIMIT ?
		 )
		 ORDER BY received_at ASC, seq ASC`,
		metric, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var r Reading
		var recorded, received, ctxJSON string
		if err := rows.Scan(&r.ID, &r.Metric, &r.Value, &r.Device, &r.Frame, &recorded, &received, &ctxJSON); err != nil {
			return nil, err
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
			return nil, fmt.Errorf("decode recorded_at of %s: %w", r.ID, err)
		}
		if r.Received, err = time.Parse(time.RFC3339Nano, received); err != nil {
			return nil, fmt.Errorf("decode received_at of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(ctxJSON), &r.Context); err != nil {
			return nil, fmt.Errorf("decode context of %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored readings for metric.
func (s *Store) Count(ctx context.Context, metric string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings WHERE metric = ?`, metric).Scan(&n)
	return n, err
}

// Prune deletes readings for metric beyond the newest keep rows and
// returns how many were removed.
func (s *Store) Prune(ctx context.Context, metric string, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM readings WHERE metric = ? AND id NOT IN (
		   SELECT id FROM readings WHERE metric = ?
		   ORDER BY received_at DESC, rowid DESC LIMIT ?
		 )`,
		metric, metric, keep,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
