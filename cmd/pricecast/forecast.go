package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HatiCode/pricecast/cmd/pricecast/config"
	"github.com/HatiCode/pricecast/cmd/pricecast/logger"
	"github.com/HatiCode/pricecast/cmd/pricecast/metrics"
	"github.com/HatiCode/pricecast/cmd/pricecast/store"
	"github.com/HatiCode/pricecast/pkg/adapters"
	"github.com/HatiCode/pricecast/pkg/storage"
	"github.com/HatiCode/pricecast/pkg/tracing"
)

// forecastCmd runs the pipeline once and prints the selected model and its
// forecast.
func forecastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Select an ARIMA model and forecast the next hours once",
		Long: `Loads the series, fits every candidate order, selects the lowest AICc and
prints the forecast with its confidence interval. Logs go to stderr, the
forecast to stdout.`,
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

			shutdown, err := initTracing(ctx, cfg)
			if err != nil {
				return err
			}
			defer shutdownTracing(shutdown, log)

			st, closeStore, err := store.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeStore(); err != nil {
					log.Error("failed to close store", "error", err)
				}
			}()

			p, err := buildPipeline(cfg, st, log, nil, nil)
			if err != nil {
				return err
			}

			res, err := p.Tick(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), cfg.Output, res.Snapshot)
		},
	}

	addModelFlags(cmd)
	cmd.Flags().StringP("output", "o", "table", "Output format: table, json, csv, yaml")

	return cmd
}

// buildPipeline creates the configured adapter and the pipeline around it.
func buildPipeline(cfg *config.Config, st storage.Store, log *slog.Logger, m *metrics.Metrics, onResult func(*Result, error)) (*Pipeline, error) {
	adapter, err := adapters.New(cfg.Adapter, cfg.AdapterSettings)
	if err != nil {
		return nil, fmt.Errorf("adapter: %w", err)
	}

	return NewPipeline(PipelineOptions{
		Series:    cfg.Series,
		Adapter:   adapter,
		Store:     st,
		Grid:      cfg.Grid(),
		Horizon:   cfg.Horizon,
		Level:     cfg.ConfidenceLevel,
		Window:    cfg.Window,
		Workers:   cfg.Workers,
		CacheSize: cfg.CacheSize,
		Logger:    log,
		Metrics:   m,
		OnResult:  onResult,
	})
}

func initTracing(ctx context.Context, cfg *config.Config) (tracing.ShutdownFunc, error) {
	shutdown, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    "pricecast",
		ServiceVersion: version,
		Endpoint:       cfg.OTelEndpoint,
		Insecure:       true,
		SampleRate:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	return shutdown, nil
}

func shutdownTracing(shutdown tracing.ShutdownFunc, log *slog.Logger) {
	if err := shutdown(context.Background()); err != nil {
		log.Error("failed to flush traces", "error", err)
	}
}
