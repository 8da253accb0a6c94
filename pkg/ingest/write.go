package ingest

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultTable is the SQLite table written by WriteSQLite.
const DefaultTable = "power"

// WriteCSV writes the table with a utc_timestamp column first and Hour last,
// the layout series.ReadCSV expects by default.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)

	header := append([]string{"utc_timestamp"}, t.Columns...)
	header = append(header, "Hour")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(header))
	for _, rec := range t.Records {
		row[0] = rec.Timestamp.Format(time.RFC3339)
		for i, v := range rec.Values {
			row[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		row[len(row)-1] = strconv.Itoa(rec.Hour)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSQLite replaces table in the database at path with the cleaned data.
// Timestamps go to a "Timestamp" column as RFC3339 text.
func WriteSQLite(ctx context.Context, path, table string, t *Table) error {
	if table == "" {
		table = DefaultTable
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", path, err)
	}
	defer db.Close()

	cols := []string{`"Timestamp" TEXT NOT NULL`}
	names := []string{`"Timestamp"`}
	for _, c := range t.Columns {
		cols = append(cols, quote(c)+" REAL NOT NULL")
		names = append(names, quote(c))
	}
	cols = append(cols, `"Hour" INTEGER NOT NULL`)
	names = append(names, `"Hour"`)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(table)); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quote(table), strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(names, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(names))
	for _, rec := range t.Records {
		args[0] = rec.Timestamp.Format(time.RFC3339)
		for i, v := range rec.Values {
			args[i+1] = v
		}
		args[len(args)-1] = rec.Hour
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s: %w", rec.Timestamp.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
