// Package adapters provides the series providers that load hourly price
// observations from external systems and normalize them into a
// [series.Series].
//
// Each adapter implements the Adapter interface. Available adapters:
//   - CSVAdapter: a headed CSV file on disk or behind an http(s) URL
//   - SQLiteAdapter: a table written by the ingest pipeline
//   - HTTPAdapter: any REST API with JSON responses
//   - PrometheusAdapter: a range query against Prometheus or VictoriaMetrics
//
// Adapters only fetch and shape data. Validation happens in the model layer,
// so an adapter may return a series with gaps and let Search reject it.
package adapters

import (
	"context"
	"sort"
	"time"

	"github.com/HatiCode/pricecast/pkg/series"
)

// Adapter is the interface that all series providers implement.
//
// The Collect call is synchronous and should respect context cancellation
// and deadlines.
type Adapter interface {
	// Collect returns the observations of the trailing window ending at the
	// last available observation. A zero window returns everything.
	Collect(ctx context.Context, window time.Duration) (*series.Series, error)

	// Name returns a short identifier for the adapter, e.g. "csv", "http".
	Name() string
}

// AlignTimestamp truncates ts to the step grid.
func AlignTimestamp(ts time.Time, step time.Duration) time.Time {
	return ts.Truncate(step)
}

type point struct {
	ts    time.Time
	value float64
}

// buildSeries sorts points by timestamp and trims them to window.
func buildSeries(name string, step time.Duration, points []point, window time.Duration) *series.Series {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].ts.Before(points[j].ts)
	})
	ts := make([]time.Time, len(points))
	values := make([]float64, len(points))
	for i, p := range points {
		ts[i] = p.ts.UTC()
		values[i] = p.value
	}
	return series.New(name, step, ts, values).Window(window)
}
