package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CSVOptions controls how ReadCSV maps columns to a series.
type CSVOptions struct {
	// TimestampColumn is the header of the timestamp column (default "utc_timestamp").
	TimestampColumn string
	// ValueColumn is the header of the value column (default "Price").
	ValueColumn string
	// TimeLayout is the time.Parse layout (default time.RFC3339).
	TimeLayout string
	// Step is the expected spacing (default one hour).
	Step time.Duration
	// Comma is the field delimiter (default ',').
	Comma rune
}

func (o CSVOptions) withDefaults() CSVOptions {
	if o.TimestampColumn == "" {
		o.TimestampColumn = "utc_timestamp"
	}
	if o.ValueColumn == "" {
		o.ValueColumn = "Price"
	}
	if o.TimeLayout == "" {
		o.TimeLayout = time.RFC3339
	}
	if o.Step <= 0 {
		o.Step = DefaultStep
	}
	if o.Comma == 0 {
		o.Comma = ','
	}
	return o
}

// ReadCSV reads a headed CSV into a series named after the value column.
//
// Rows whose value cell is empty are dropped, matching how raw market
// exports mark hours without a published price. Rows are sorted by
// timestamp; gaps left behind are reported later by Validate.
func ReadCSV(r io.Reader, opts CSVOptions) (*Series, error) {
	opts = opts.withDefaults()

	reader := csv.NewReader(r)
	reader.Comma = opts.Comma
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv: missing header row")
		}
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	tsIdx, valIdx := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case opts.TimestampColumn:
			tsIdx = i
		case opts.ValueColumn:
			valIdx = i
		}
	}
	if tsIdx < 0 {
		return nil, fmt.Errorf("csv: timestamp column %q not found", opts.TimestampColumn)
	}
	if valIdx < 0 {
		return nil, fmt.Errorf("csv: value column %q not found", opts.ValueColumn)
	}

	type row struct {
		ts  time.Time
		val float64
	}
	var rows []row

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}
		if tsIdx >= len(record) || valIdx >= len(record) {
			return nil, fmt.Errorf("csv: line %d: expected at least %d fields, got %d", line, max(tsIdx, valIdx)+1, len(record))
		}

		raw := strings.TrimSpace(record[valIdx])
		if raw == "" {
			continue
		}
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: parse value %q: %w", line, raw, err)
		}
		ts, err := time.Parse(opts.TimeLayout, strings.TrimSpace(record[tsIdx]))
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: parse timestamp: %w", line, err)
		}
		rows = append(rows, row{ts: ts.UTC(), val: val})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ts.Before(rows[j].ts)
	})

	timestamps := make([]time.Time, len(rows))
	values := make([]float64, len(rows))
	for i, r := range rows {
		timestamps[i] = r.ts
		values[i] = r.val
	}

	return New(opts.ValueColumn, opts.Step, timestamps, values), nil
}
