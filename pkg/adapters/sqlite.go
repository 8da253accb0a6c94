package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HatiCode/pricecast/pkg/series"
)

// SQLiteAdapter reads a price series from a SQLite table. The defaults
// match the table written by the ingest command: power(Timestamp, Price).
type SQLiteAdapter struct {
	// Path is the database file (required).
	Path string
	// Table defaults to "power".
	Table string
	// TimestampColumn defaults to "Timestamp".
	TimestampColumn string
	// ValueColumn defaults to "Price".
	ValueColumn string
	// TimeLayout parses text timestamps (default time.RFC3339).
	TimeLayout string
	// Step is the series frequency (default one hour).
	Step time.Duration
	// SeriesName overrides the series name (defaults to the value column).
	SeriesName string
}

func (a *SQLiteAdapter) Name() string { return "sqlite" }

// Collect implements Adapter. Rows with a NULL value are skipped.
func (a *SQLiteAdapter) Collect(ctx context.Context, window time.Duration) (*series.Series, error) {
	if a.Path == "" {
		return nil, fmt.Errorf("sqlite adapter: path is required")
	}
	table := orDefault(a.Table, "power")
	tsCol := orDefault(a.TimestampColumn, "Timestamp")
	valCol := orDefault(a.ValueColumn, "Price")
	layout := orDefault(a.TimeLayout, time.RFC3339)

	db, err := sql.Open("sqlite", a.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite adapter: open %s: %w", a.Path, err)
	}
	defer db.Close()

	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IS NOT NULL",
		quoteIdent(tsCol), quoteIdent(valCol), quoteIdent(table), quoteIdent(valCol))
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite adapter: query: %w", err)
	}
	defer rows.Close()

	var points []point
	for rows.Next() {
		var (
			rawTS any
			value float64
		)
		if err := rows.Scan(&rawTS, &value); err != nil {
			return nil, fmt.Errorf("sqlite adapter: scan: %w", err)
		}
		ts, err := parseSQLTime(rawTS, layout)
		if err != nil {
			return nil, fmt.Errorf("sqlite adapter: row %d: %w", len(points)+1, err)
		}
		points = append(points, point{ts: ts, value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite adapter: %w", err)
	}

	return buildSeries(orDefault(a.SeriesName, valCol), a.Step, points, window), nil
}

func parseSQLTime(v any, layout string) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return time.Parse(layout, t)
	case []byte:
		return time.Parse(layout, string(t))
	case int64:
		return time.Unix(t, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
