// Package ingest downloads the Open Power System Data hourly time series,
// reduces it to the German day-ahead market columns and persists the result
// as CSV and SQLite for the series adapters.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DefaultURL is the OPSD 60-minute single-index release of 2020-10-06.
const DefaultURL = "https://data.open-power-system-data.org/time_series/2020-10-06/time_series_60min_singleindex.csv"

// Download fetches url into dst. The body is written to a temporary file
// next to dst and renamed on success, so dst is never left half-written.
// A nil client uses a client with a five-minute timeout.
func Download(ctx context.Context, client *http.Client, url, dst string) (int64, error) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("download %s: http status %d: %s", url, resp.StatusCode, string(body))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("rename to %s: %w", dst, err)
	}
	return n, nil
}
