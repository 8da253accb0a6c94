// Package router configures the routes of the pricecast HTTP API.
//
// Routes configured:
//   - GET  /forecast/current?series=<name>  - latest forecast snapshot
//   - GET  /forecast/history?series=<name>&limit=<n> - past snapshots (SQLite storage only)
//   - POST /forecast/refresh                - run the pipeline now (rate limited)
//   - GET  /healthz                         - 200 once a forecast exists, else 503
//   - GET  /metrics                         - Prometheus metrics
//
// Snapshots older than the stale threshold carry an X-Pricecast-Stale
// header. When no series is given the configured one is used.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/HatiCode/pricecast/pkg/httpx"
	"github.com/HatiCode/pricecast/pkg/models"
	"github.com/HatiCode/pricecast/pkg/series"
	"github.com/HatiCode/pricecast/pkg/storage"
)

// StaleHeader marks snapshots older than Options.StaleAfter.
const StaleHeader = "X-Pricecast-Stale"

const maxHistory = 100

// Refresher runs the forecast pipeline on demand.
type Refresher interface {
	Refresh(ctx context.Context) (storage.Snapshot, error)
}

// HistoryStore is implemented by stores that keep past snapshots.
type HistoryStore interface {
	History(ctx context.Context, series string, limit int) ([]storage.Snapshot, error)
}

// Options configures SetupRoutes.
type Options struct {
	Store         storage.Store
	Refresher     Refresher // nil disables POST /forecast/refresh
	DefaultSeries string
	StaleAfter    time.Duration // 0 never marks snapshots stale
	// RefreshLimiter throttles /forecast/refresh; nil means unlimited.
	RefreshLimiter *rate.Limiter
	CORSOrigins    []string
	Ready          func() error
	Gatherer       prometheus.Gatherer // nil means prometheus.DefaultGatherer
	Logger         *slog.Logger
}

// SetupRoutes returns the API handler with recovery, request logging and
// CORS applied.
func SetupRoutes(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()

	mux.Handle("/healthz", httpx.HealthHandler(opts.Ready))
	mux.HandleFunc("/forecast/current", handleGetSnapshot(opts))
	mux.HandleFunc("/forecast/history", handleHistory(opts))
	mux.HandleFunc("/forecast/refresh", handleRefresh(opts))
	mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	return httpx.Chain(mux,
		httpx.RecoveryMiddleware(opts.Logger),
		httpx.LoggingMiddleware(opts.Logger),
		httpx.CORS(opts.CORSOrigins),
	)
}

func seriesParam(r *http.Request, def string) (string, error) {
	name := r.URL.Query().Get("series")
	if name == "" {
		name = def
	}
	if name == "" {
		return "", errors.New("series parameter required")
	}
	if err := storage.ValidateSeriesName(name); err != nil {
		return "", errors.New("invalid series name format")
	}
	return name, nil
}

// handleGetSnapshot returns a handler for GET /forecast/current.
func handleGetSnapshot(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		name, err := seriesParam(r, opts.DefaultSeries)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}
		if opts.Store == nil {
			httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "no snapshot store configured")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		snapshot, found, err := opts.Store.GetLatest(ctx, name)
		if err != nil {
			opts.Logger.Error("failed to get snapshot", "series", name, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("snapshot not found for series %q", name))
			return
		}

		if opts.StaleAfter > 0 && time.Since(snapshot.GeneratedAt) > opts.StaleAfter {
			w.Header().Set(StaleHeader, "true")
		}
		if err := httpx.WriteJSON(w, http.StatusOK, snapshot); err != nil {
			opts.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleHistory returns a handler for GET /forecast/history.
func handleHistory(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		hs, ok := opts.Store.(HistoryStore)
		if !ok {
			httpx.WriteErrorMessage(w, http.StatusNotImplemented, "storage backend keeps no history")
			return
		}
		name, err := seriesParam(r, opts.DefaultSeries)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}
		limit := 10
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxHistory {
				httpx.WriteErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistory))
				return
			}
			limit = n
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		history, err := hs.History(ctx, name, limit)
		if err != nil {
			opts.Logger.Error("failed to get history", "series", name, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if history == nil {
			history = []storage.Snapshot{}
		}
		if err := httpx.WriteJSON(w, http.StatusOK, history); err != nil {
			opts.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleRefresh returns a handler for POST /forecast/refresh. Only
// requests that pass the method check draw from the rate limiter.
func handleRefresh(opts Options) http.HandlerFunc {
	refresh := httpx.RateLimit(opts.RefreshLimiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := opts.Refresher.Refresh(r.Context())
		if err != nil {
			status := StatusFor(err)
			opts.Logger.Error("refresh failed", "status", status, "error", err)
			httpx.WriteError(w, status, err)
			return
		}
		if err := httpx.WriteJSON(w, http.StatusOK, snapshot); err != nil {
			opts.Logger.Error("failed to write JSON response", "error", err)
		}
	}))

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			httpx.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if opts.Refresher == nil {
			httpx.WriteErrorMessage(w, http.StatusNotImplemented, "refresh not available")
			return
		}
		refresh.ServeHTTP(w, r)
	}
}

// StatusFor maps a pipeline error to an HTTP status: unusable input data
// is 422, a timeout 504, anything else 500.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, series.ErrMalformed), errors.Is(err, models.ErrSearchExhausted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
