package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HatiCode/pricecast/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS forecasts (
	id           TEXT PRIMARY KEY,
	series       TEXT NOT NULL,
	generated_at INTEGER NOT NULL,
	p            INTEGER NOT NULL,
	d            INTEGER NOT NULL,
	q            INTEGER NOT NULL,
	aicc         REAL NOT NULL,
	params       TEXT NOT NULL,
	level        REAL NOT NULL,
	candidates   INTEGER NOT NULL,
	failed       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS forecasts_series_generated ON forecasts (series, generated_at);
CREATE TABLE IF NOT EXISTS forecast_points (
	forecast_id TEXT NOT NULL REFERENCES forecasts (id) ON DELETE CASCADE,
	h           INTEGER NOT NULL,
	ts          INTEGER NOT NULL,
	mean        REAL NOT NULL,
	lower       REAL NOT NULL,
	upper       REAL NOT NULL,
	PRIMARY KEY (forecast_id, h)
);
`

// SQLiteStore keeps every published snapshot in a SQLite database, so the
// forecast history can be compared with realised prices later.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path cannot be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer; modernc serialises access per connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Put appends a snapshot and its points in one transaction.
func (s *SQLiteStore) Put(ctx context.Context, snap Snapshot) error {
	if err := ValidateSeriesName(snap.Series); err != nil {
		return err
	}
	if snap.ID == "" {
		return errors.New("snapshot id required")
	}

	params, err := json.Marshal(snap.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO forecasts (id, series, generated_at, p, d, q, aicc, params, level, candidates, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Series, snap.GeneratedAt.UnixNano(),
		snap.Order.P, snap.Order.D, snap.Order.Q,
		snap.AICc, string(params), snap.Level, snap.Candidates, snap.Failed,
	)
	if err != nil {
		return fmt.Errorf("insert forecast: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO forecast_points (forecast_id, h, ts, mean, lower, upper) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare points: %w", err)
	}
	defer stmt.Close()

	for i, p := range snap.Points {
		if _, err := stmt.ExecContext(ctx, snap.ID, i+1, p.Timestamp.Unix(), p.Mean, p.Lower, p.Upper); err != nil {
			return fmt.Errorf("insert point %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetLatest returns the most recently generated snapshot of a series.
func (s *SQLiteStore) GetLatest(ctx context.Context, name string) (Snapshot, bool, error) {
	history, err := s.History(ctx, name, 1)
	if err != nil {
		return Snapshot{}, false, err
	}
	if len(history) == 0 {
		return Snapshot{}, false, nil
	}
	return history[0], true, nil
}

// History returns up to limit snapshots of a series, newest first.
func (s *SQLiteStore) History(ctx context.Context, name string, limit int) ([]Snapshot, error) {
	if err := ValidateSeriesName(name); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, generated_at, p, d, q, aicc, params, level, candidates, failed
		 FROM forecasts WHERE series = ? ORDER BY generated_at DESC LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("query forecasts: %w", err)
	}

	var out []Snapshot
	for rows.Next() {
		var (
			snap        = Snapshot{Series: name}
			generatedAt int64
			params      string
		)
		if err := rows.Scan(&snap.ID, &generatedAt, &snap.Order.P, &snap.Order.D, &snap.Order.Q,
			&snap.AICc, &params, &snap.Level, &snap.Candidates, &snap.Failed); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		snap.GeneratedAt = time.Unix(0, generatedAt).UTC()
		if err := json.Unmarshal([]byte(params), &snap.Params); err != nil {
			rows.Close()
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
		out = append(out, snap)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query forecasts: %w", err)
	}

	for i := range out {
		points, err := s.points(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Points = points
	}
	return out, nil
}

func (s *SQLiteStore) points(ctx context.Context, id string) ([]models.ForecastPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, mean, lower, upper FROM forecast_points WHERE forecast_id = ? ORDER BY h`, id)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var points []models.ForecastPoint
	for rows.Next() {
		var (
			ts int64
			p  models.ForecastPoint
		)
		if err := rows.Scan(&ts, &p.Mean, &p.Lower, &p.Upper); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		p.Timestamp = time.Unix(ts, 0).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
