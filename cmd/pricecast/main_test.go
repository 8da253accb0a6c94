package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HatiCode/pricecast/pkg/models"
	"github.com/HatiCode/pricecast/pkg/storage"
)

// writeRawExport writes an OPSD-shaped export of n hours with one hour
// missing its price.
func writeRawExport(t *testing.T, path string, n int) {
	t.Helper()
	prices := ar1(11, n, 0.7, 45)

	var b strings.Builder
	b.WriteString("utc_timestamp,cet_cest_timestamp,DE_LU_price_day_ahead,DE_load_actual_entsoe_transparency,DE_wind_onshore_generation_actual\n")
	for i, p := range prices {
		ts := origin.Add(time.Duration(i) * time.Hour)
		price := fmt.Sprintf("%.2f", p)
		if i == 0 {
			price = ""
		}
		fmt.Fprintf(&b, "%s,%s,%s,%d,%d\n", ts.Format(time.RFC3339), ts.Add(2*time.Hour).Format("2006-01-02T15:04:05")+"+0200", price, 50000+i, 9000+i)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIngestThenForecast(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.csv")
	clean := filepath.Join(dir, "out", "clean.csv")
	db := filepath.Join(dir, "out", "market.db")
	writeRawExport(t, raw, 301)

	if _, err := execute(t, "ingest", "--skip-download", "--raw", raw, "--csv-out", clean, "--sqlite-out", db); err != nil {
		t.Fatalf("ingest error = %v", err)
	}

	tests := []struct {
		name    string
		adapter []string
	}{
		{"csv", []string{"--adapter", "csv", "--adapter-config", "source=" + clean}},
		{"sqlite", []string{"--adapter", "sqlite", "--adapter-config", "path=" + db}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"forecast"}, tt.adapter...)
			args = append(args, "--order", "1,0,0", "--horizon", "12", "--level", "p80", "--storage", "none", "--output", "json")

			out, err := execute(t, args...)
			if err != nil {
				t.Fatalf("forecast error = %v", err)
			}

			var snap storage.Snapshot
			if err := json.Unmarshal([]byte(out), &snap); err != nil {
				t.Fatalf("decode %q: %v", out, err)
			}
			if snap.Order != (models.Order{P: 1, D: 0, Q: 0}) {
				t.Errorf("Order = %v, want arima(1,0,0)", snap.Order)
			}
			if snap.Series != "de-price" || snap.Level != 0.8 || snap.Candidates != 1 {
				t.Errorf("snapshot = %+v", snap)
			}
			if len(snap.Points) != 12 {
				t.Fatalf("len(Points) = %d, want 12", len(snap.Points))
			}
			// the first hour was dropped for its missing price, the last one is origin+300h
			if want := origin.Add(301 * time.Hour); !snap.Points[0].Timestamp.Equal(want) {
				t.Errorf("first forecast hour = %v, want %v", snap.Points[0].Timestamp, want)
			}
		})
	}
}

func TestForecastTableOutput(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.csv")
	clean := filepath.Join(dir, "clean.csv")
	writeRawExport(t, raw, 201)
	if _, err := execute(t, "ingest", "--skip-download", "--raw", raw, "--csv-out", clean, "--sqlite-out", ""); err != nil {
		t.Fatalf("ingest error = %v", err)
	}

	out, err := execute(t, "forecast", "--adapter-config", "source="+clean, "--max-p", "1", "--max-q", "1", "--d", "0", "--storage", "none")
	if err != nil {
		t.Fatalf("forecast error = %v", err)
	}
	for _, want := range []string{"series:     de-price", "model:      arima(", "fitted", "p95", "timestamp"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestForecastRejectsBadFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad order", []string{"forecast", "--order", "1,2"}},
		{"bad level", []string{"forecast", "--level", "1.5"}},
		{"bad output", []string{"forecast", "--output", "xml"}},
		{"unknown adapter", []string{"forecast", "--adapter", "kafka", "--storage", "none"}},
		{"missing csv", []string{"forecast", "--adapter-config", "source=/nonexistent/prices.csv", "--storage", "none"}},
		{"extra argument", []string{"forecast", "now"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Errorf("execute(%v) error = nil, want error", tt.args)
			}
		})
	}
}
