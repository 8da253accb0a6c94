// Command pricecast forecasts hourly electricity prices with an
// automatically selected ARIMA model.
//
// For every series it fits all candidate orders of the grid
// d ∈ {0,1}, p,q ∈ 0..3 by maximum likelihood, keeps the one with the
// lowest small-sample corrected AIC (AICc) and produces a 24-hour forecast
// with a confidence interval.
//
// Subcommands:
//   - ingest   - download the OPSD export and write the cleaned CSV and SQLite table
//   - forecast - run the pipeline once and print the forecast
//   - serve    - run the pipeline on an interval and expose it over HTTP and gRPC health
//
// Usage:
//
//	pricecast ingest
//	pricecast forecast --output json
//	pricecast forecast --adapter sqlite --adapter-config path=data/market_data.db --order 2,1,1
//	pricecast serve --interval 1h --storage redis --redis-addr redis:6379
//
// Every flag can also be set with a PRICECAST_ environment variable
// (--max-p is PRICECAST_MAX_P) or in the YAML file given with --config.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/HatiCode/pricecast/cmd/pricecast/config"
)

// version is set via ldflags at build time
var version = "dev"

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pricecast",
		Short: "Hourly electricity price forecasts with automatic ARIMA order selection",
		Long: `Fits every ARIMA(p,d,q) candidate of a small grid to an hourly price series,
selects the model with the lowest AICc and forecasts the next hours with a
confidence interval.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text, json")

	// Subcommands
	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(ingestCmd())

	return rootCmd
}

// loadConfig binds the flags of cmd, including the persistent ones it
// inherits, and loads the configuration on top of them.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return config.Load(v, configFile)
}

// addModelFlags registers the flags shared by forecast and serve.
func addModelFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.String("series", "de-price", "Series name used for storage keys and metrics")
	f.String("adapter", "csv", "Series adapter: csv, sqlite, http, prometheus, victoriametrics")
	f.StringArray("adapter-config", nil, "Adapter setting as key=value (repeatable)")
	f.Duration("window", 60*24*time.Hour, "Trailing history window fed to the model (0 uses all of it)")

	f.Int("horizon", 24, "Forecast horizon in steps")
	f.String("level", "0.95", "Confidence level, e.g. 0.95 or p80")
	f.Int("max-p", 3, "Largest autoregressive order searched")
	f.Int("max-q", 3, "Largest moving-average order searched")
	f.IntSlice("d", []int{0, 1}, "Differencing orders searched")
	f.String("order", "", "Fit only this order, as p,d,q")
	f.Int("workers", 0, "Parallel candidate fits (0 uses GOMAXPROCS)")

	f.String("storage", "memory", "Snapshot storage: memory, redis, sqlite, none")
	f.String("redis-addr", "localhost:6379", "Redis address")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database")
	f.Duration("redis-ttl", 2*time.Hour, "Redis snapshot TTL")
	f.String("sqlite-path", "pricecast.db", "SQLite snapshot database")

	f.String("otel-endpoint", "", "OTLP gRPC endpoint for traces (empty disables tracing)")
}
