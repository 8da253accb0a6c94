package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Column maps a raw OPSD column to its cleaned name.
type Column struct {
	Source string
	Name   string
}

// DefaultColumns are the German market columns kept by Clean.
var DefaultColumns = []Column{
	{Source: "DE_LU_price_day_ahead", Name: "Price"},
	{Source: "DE_load_actual_entsoe_transparency", Name: "Load"},
	{Source: "DE_wind_onshore_generation_actual", Name: "Wind"},
}

// CleanOptions configures Clean.
type CleanOptions struct {
	// TimestampColumn is the raw timestamp column (default "utc_timestamp").
	TimestampColumn string
	// Columns to keep and rename (default DefaultColumns).
	Columns []Column
}

// Record is one cleaned hour.
type Record struct {
	Timestamp time.Time
	Values    []float64 // in Table.Columns order
	Hour      int
}

// Table is the cleaned data set.
type Table struct {
	Columns []string
	Records []Record
	// Dropped counts rows discarded for a missing value.
	Dropped int
}

// Clean reads a raw OPSD CSV, keeps the configured columns under their new
// names, drops every row with a missing value and adds the UTC hour.
func Clean(r io.Reader, opts CleanOptions) (*Table, error) {
	if opts.TimestampColumn == "" {
		opts.TimestampColumn = "utc_timestamp"
	}
	if len(opts.Columns) == 0 {
		opts.Columns = DefaultColumns
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("clean: missing header row")
		}
		return nil, fmt.Errorf("clean: read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	tsIdx, ok := index[opts.TimestampColumn]
	if !ok {
		return nil, fmt.Errorf("clean: timestamp column %q not found", opts.TimestampColumn)
	}
	colIdx := make([]int, len(opts.Columns))
	table := &Table{Columns: make([]string, len(opts.Columns))}
	for i, c := range opts.Columns {
		idx, ok := index[c.Source]
		if !ok {
			return nil, fmt.Errorf("clean: column %q not found", c.Source)
		}
		colIdx[i] = idx
		table.Columns[i] = c.Name
	}

	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("clean: line %d: %w", line, err)
		}

		values, complete, err := pick(rec, colIdx)
		if err != nil {
			return nil, fmt.Errorf("clean: line %d: %w", line, err)
		}
		if !complete || tsIdx >= len(rec) {
			table.Dropped++
			continue
		}

		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[tsIdx]))
		if err != nil {
			return nil, fmt.Errorf("clean: line %d: parse timestamp: %w", line, err)
		}
		ts = ts.UTC()
		table.Records = append(table.Records, Record{Timestamp: ts, Values: values, Hour: ts.Hour()})
	}

	return table, nil
}

func pick(rec []string, idx []int) ([]float64, bool, error) {
	values := make([]float64, len(idx))
	for i, j := range idx {
		if j >= len(rec) {
			return nil, false, nil
		}
		raw := strings.TrimSpace(rec[j])
		if raw == "" {
			return nil, false, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false, fmt.Errorf("parse %q: %w", raw, err)
		}
		values[i] = v
	}
	return values, true, nil
}
