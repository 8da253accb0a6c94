package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/HatiCode/pricecast/cmd/pricecast/config"
	"github.com/HatiCode/pricecast/cmd/pricecast/logger"
	"github.com/HatiCode/pricecast/pkg/httpx"
	"github.com/HatiCode/pricecast/pkg/ingest"
)

// ingestCmd downloads the OPSD export and writes the cleaned price data
// the csv and sqlite adapters read by default.
func ingestCmd() *cobra.Command {
	var (
		url          string
		rawPath      string
		skipDownload bool
		csvOut       string
		sqliteOut    string
		table        string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Download and clean the OPSD hourly market data",
		Long: `Downloads the Open Power System Data 60-minute export, keeps the German
day-ahead price, load and onshore wind columns, drops incomplete hours and
writes the result as CSV and as a SQLite table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
			slog.SetDefault(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !skipDownload {
				start := time.Now()
				n, err := ingest.Download(ctx, httpx.NewClient(10*time.Minute), url, rawPath)
				if err != nil {
					return err
				}
				log.Info("downloaded raw data", "url", url, "path", rawPath, "bytes", n, "duration_ms", time.Since(start).Milliseconds())
			}

			f, err := os.Open(rawPath)
			if err != nil {
				return fmt.Errorf("open raw data: %w", err)
			}
			t, err := ingest.Clean(f, ingest.CleanOptions{})
			f.Close()
			if err != nil {
				return err
			}
			log.Info("cleaned data", "rows", len(t.Records), "dropped", t.Dropped, "columns", t.Columns)

			if csvOut != "" {
				if err := writeCSVFile(csvOut, t); err != nil {
					return err
				}
				log.Info("wrote csv", "path", csvOut)
			}

			if sqliteOut != "" {
				if err := os.MkdirAll(filepath.Dir(sqliteOut), 0o755); err != nil {
					return fmt.Errorf("create directory: %w", err)
				}
				if err := ingest.WriteSQLite(ctx, sqliteOut, table, t); err != nil {
					return err
				}
				log.Info("wrote sqlite table", "path", sqliteOut, "table", table)
			}

			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&url, "url", ingest.DefaultURL, "OPSD export URL")
	f.StringVar(&rawPath, "raw", "data/power_data_raw.csv", "Where the raw download is kept")
	f.BoolVar(&skipDownload, "skip-download", false, "Clean an existing raw file without downloading")
	f.StringVar(&csvOut, "csv-out", config.DefaultCSVSource, "Cleaned CSV output (empty skips)")
	f.StringVar(&sqliteOut, "sqlite-out", "data/market_data.db", "SQLite output (empty skips)")
	f.StringVar(&table, "table", ingest.DefaultTable, "SQLite table name")

	return cmd
}

func writeCSVFile(path string, t *ingest.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := ingest.WriteCSV(out, t); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
