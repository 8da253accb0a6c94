package main

// This file contains the Pipeline type which orchestrates one forecast run:
//
//	collect → validate → search (cached) → forecast → snapshot → store
//
// serve runs the pipeline at startup and then on every interval tick; the
// forecast command runs it once. Each stage is timed into Prometheus and
// wrapped in an OpenTelemetry span.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/HatiCode/pricecast/cmd/pricecast/metrics"
	"github.com/HatiCode/pricecast/pkg/adapters"
	"github.com/HatiCode/pricecast/pkg/models"
	"github.com/HatiCode/pricecast/pkg/series"
	"github.com/HatiCode/pricecast/pkg/storage"
	"github.com/HatiCode/pricecast/pkg/tracing"
)

// searchKey identifies a search result: the same data searched over the
// same grid always selects the same model.
type searchKey struct {
	series      string
	fingerprint uint64
	grid        string
}

// PipelineOptions configures NewPipeline.
type PipelineOptions struct {
	Series  string
	Adapter adapters.Adapter
	Store   storage.Store // nil skips persistence
	Grid    models.Grid
	Horizon int
	Level   float64
	Window  time.Duration
	Workers int
	// CacheSize bounds the search cache; 0 disables it.
	CacheSize int
	Logger    *slog.Logger
	Metrics   *metrics.Metrics // nil disables instrumentation
	// OnResult, if set, is called after every run with its outcome.
	OnResult func(*Result, error)
}

// Pipeline runs collect → search → forecast → store for one series.
type Pipeline struct {
	series   string
	adapter  adapters.Adapter
	store    storage.Store
	grid     models.Grid
	horizon  int
	level    float64
	window   time.Duration
	workers  int
	cache    *lru.Cache[searchKey, *models.SearchResult]
	logger   *slog.Logger
	metrics  *metrics.Metrics
	onResult func(*Result, error)
	now      func() time.Time

	// runMu serializes runs; the interval loop and /forecast/refresh share it.
	runMu sync.Mutex

	mu     sync.RWMutex
	latest *storage.Snapshot
}

// NewPipeline validates opts and builds a pipeline.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Adapter == nil {
		return nil, errors.New("pipeline requires an adapter")
	}
	if err := storage.ValidateSeriesName(opts.Series); err != nil {
		return nil, err
	}
	if err := opts.Grid.Validate(); err != nil {
		return nil, err
	}
	if opts.Horizon < 1 {
		return nil, fmt.Errorf("horizon must be at least 1, got %d", opts.Horizon)
	}
	if err := models.ValidateConfidenceLevel(opts.Level); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Pipeline{
		series:   opts.Series,
		adapter:  opts.Adapter,
		store:    opts.Store,
		grid:     opts.Grid,
		horizon:  opts.Horizon,
		level:    opts.Level,
		window:   opts.Window,
		workers:  opts.Workers,
		logger:   opts.Logger.With("series", opts.Series),
		metrics:  opts.Metrics,
		onResult: opts.OnResult,
		now:      time.Now,
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[searchKey, *models.SearchResult](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("search cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// Result is the outcome of one run.
type Result struct {
	Search   *models.SearchResult
	Forecast *models.ForecastResult
	Snapshot storage.Snapshot
	CacheHit bool
}

// Run executes the pipeline now and then every interval until ctx is
// canceled. A non-positive interval runs once and returns nil. Failed runs
// are logged and do not stop the loop.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	p.logger.Info("starting forecast loop", "interval", interval, "window", p.window, "grid", p.grid.String())

	if _, err := p.Tick(ctx); err != nil {
		p.logger.Error("initial forecast run failed", "error", err)
	}
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	age := time.NewTicker(ageInterval)
	defer age.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("forecast loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Tick(ctx); err != nil {
				p.logger.Error("forecast run failed", "error", err)
			}
		case <-age.C:
			p.updateAge()
		}
	}
}

const ageInterval = 15 * time.Second

func (p *Pipeline) updateAge() {
	if p.metrics == nil {
		return
	}
	if snap, ok := p.Latest(); ok {
		p.metrics.SetForecastAge(p.now().Sub(snap.GeneratedAt).Seconds())
	}
}

// Tick performs one forecast run.
func (p *Pipeline) Tick(ctx context.Context) (*Result, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	res, err := p.tick(ctx)
	if p.onResult != nil {
		p.onResult(res, err)
	}
	return res, err
}

func (p *Pipeline) tick(ctx context.Context) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "pricecast.run", tracing.AttrSeries.String(p.series))
	defer span.End()

	start := time.Now()

	s, collectDuration, err := p.collect(ctx)
	if err != nil {
		p.recordError("adapter", "collect_failed")
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("collect: %w", err)
	}

	if err := s.Validate(); err != nil {
		p.recordError("series", "malformed")
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("series %s: %w", p.series, err)
	}

	res, hit, searchDuration, err := p.search(ctx, s)
	if err != nil {
		reason := "search_failed"
		if errors.Is(err, models.ErrSearchExhausted) {
			reason = "search_exhausted"
		}
		p.recordError("model", reason)
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("search: %w", err)
	}

	fc, forecastDuration, err := p.forecast(ctx, res)
	if err != nil {
		p.recordError("model", "forecast_failed")
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("forecast: %w", err)
	}

	snap := storage.NewSnapshot(res, fc, p.now())
	if p.store != nil {
		if err := p.store.Put(ctx, snap); err != nil {
			p.recordError("store", "put_failed")
			tracing.RecordError(span, err)
			return nil, fmt.Errorf("store: %w", err)
		}
	}
	p.mu.Lock()
	p.latest = &snap
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.SetForecastAge(0)
	}

	p.logger.Info("forecast run complete",
		"order", res.Order.String(),
		"aicc", res.AICc,
		"candidates", res.Tried,
		"failed", res.Failed,
		"cache_hit", hit,
		"points", len(fc.Points),
		"collect_ms", collectDuration.Milliseconds(),
		"search_ms", searchDuration.Milliseconds(),
		"forecast_ms", forecastDuration.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)

	return &Result{Search: res, Forecast: fc, Snapshot: snap, CacheHit: hit}, nil
}

func (p *Pipeline) collect(ctx context.Context) (*series.Series, time.Duration, error) {
	ctx, span := tracing.StartSpan(ctx, "pricecast.collect", tracing.AttrAdapter.String(p.adapter.Name()))
	defer span.End()

	start := time.Now()
	s, err := p.adapter.Collect(ctx, p.window)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, 0, err
	}
	duration := time.Since(start)

	// the configured name keys storage and output, whatever the adapter called it
	named := *s
	named.Name = p.series

	if p.metrics != nil {
		p.metrics.RecordCollect(duration.Seconds())
	}
	p.logger.Info("collected series",
		"adapter", p.adapter.Name(),
		"observations", named.Len(),
		"window", p.window,
		"duration_ms", duration.Milliseconds(),
	)
	return &named, duration, nil
}

func (p *Pipeline) search(ctx context.Context, s *series.Series) (*models.SearchResult, bool, time.Duration, error) {
	key := searchKey{series: s.Name, fingerprint: s.Fingerprint(), grid: p.grid.String()}

	ctx, span := tracing.StartSpan(ctx, "pricecast.search")
	defer span.End()

	if p.cache != nil {
		if res, ok := p.cache.Get(key); ok {
			if p.metrics != nil {
				p.metrics.RecordCache(true)
			}
			span.SetAttributes(tracing.AttrCacheHit.Bool(true), tracing.AttrOrder.String(res.Order.String()))
			p.logger.Debug("search cache hit", "order", res.Order.String())
			return res, true, 0, nil
		}
		if p.metrics != nil {
			p.metrics.RecordCache(false)
		}
	}

	start := time.Now()
	opts := []models.SearchOption{
		models.WithWorkers(p.workers),
		models.WithLogger(p.logger),
	}
	if p.metrics != nil {
		opts = append(opts, models.WithObserver(p.metrics.RecordCandidate))
	}
	res, err := models.Search(ctx, s, p.grid, opts...)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, false, 0, err
	}
	duration := time.Since(start)

	if p.cache != nil {
		p.cache.Add(key, res)
	}
	if p.metrics != nil {
		p.metrics.RecordSearch(duration.Seconds(), res)
	}
	span.SetAttributes(
		tracing.AttrCacheHit.Bool(false),
		tracing.AttrOrder.String(res.Order.String()),
		tracing.AttrAICc.Float64(res.AICc),
		tracing.AttrCandidates.Int(res.Tried),
	)
	return res, false, duration, nil
}

func (p *Pipeline) forecast(ctx context.Context, res *models.SearchResult) (*models.ForecastResult, time.Duration, error) {
	_, span := tracing.StartSpan(ctx, "pricecast.forecast", tracing.AttrHorizon.Int(p.horizon))
	defer span.End()

	start := time.Now()
	fc, err := models.Forecast(res.Best, p.horizon, p.level)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, 0, err
	}
	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordForecast(duration.Seconds(), fc)
	}
	return fc, duration, nil
}

func (p *Pipeline) recordError(component, reason string) {
	if p.metrics != nil {
		p.metrics.RecordError(component, reason)
	}
}

// Refresh runs the pipeline once and returns the new snapshot.
func (p *Pipeline) Refresh(ctx context.Context) (storage.Snapshot, error) {
	res, err := p.Tick(ctx)
	if err != nil {
		return storage.Snapshot{}, err
	}
	return res.Snapshot, nil
}

// Latest returns the snapshot of the last successful run.
func (p *Pipeline) Latest() (storage.Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return storage.Snapshot{}, false
	}
	return *p.latest, true
}

// Ready reports an error until the first run has succeeded.
func (p *Pipeline) Ready() error {
	if _, ok := p.Latest(); !ok {
		return errors.New("no forecast produced yet")
	}
	return nil
}

// Series is the name of the series the pipeline forecasts.
func (p *Pipeline) Series() string {
	return p.series
}
