package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/HatiCode/pricecast/pkg/series"
)

// CSVAdapter reads a headed CSV, either a local file or an http(s) URL.
// The defaults match the cleaned Open Power System Data export
// (utc_timestamp, Price).
type CSVAdapter struct {
	// Source is a file path or an http(s) URL (required).
	Source string

	// Options selects the timestamp and value columns.
	Options series.CSVOptions

	// SeriesName overrides the series name (defaults to the value column).
	SeriesName string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (c *CSVAdapter) Name() string { return "csv" }

// Collect implements Adapter.
func (c *CSVAdapter) Collect(ctx context.Context, window time.Duration) (*series.Series, error) {
	if c.Source == "" {
		return nil, fmt.Errorf("csv adapter: source is required")
	}

	r, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	s, err := series.ReadCSV(r, c.Options)
	if err != nil {
		return nil, fmt.Errorf("csv adapter: %s: %w", c.Source, err)
	}
	if c.SeriesName != "" {
		s.Name = c.SeriesName
	}
	return s.Window(window), nil
}

func (c *CSVAdapter) open(ctx context.Context) (io.ReadCloser, error) {
	if !strings.HasPrefix(c.Source, "http://") && !strings.HasPrefix(c.Source, "https://") {
		f, err := os.Open(c.Source)
		if err != nil {
			return nil, fmt.Errorf("csv adapter: %w", err)
		}
		return f, nil
	}

	cli := c.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 60 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Source, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}
	return resp.Body, nil
}
