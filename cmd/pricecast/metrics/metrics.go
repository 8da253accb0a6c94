// Package metrics provides Prometheus instrumentation for the forecast
// pipeline.
//
// Metrics exposed:
//   - pricecast_adapter_collect_seconds: Histogram of series collection duration
//   - pricecast_search_seconds: Histogram of order search duration
//   - pricecast_forecast_seconds: Histogram of forecast computation duration
//   - pricecast_candidates_total: Counter of candidate orders by outcome
//   - pricecast_selected_aicc: Gauge of the AICc of the selected model
//   - pricecast_selected_order: Gauge set to 1 for the selected (p,d,q)
//   - pricecast_next_forecast: Gauge of the first forecast point and its bounds
//   - pricecast_forecast_age_seconds: Gauge of the age of the last forecast
//   - pricecast_search_cache_total: Counter of search cache hits and misses
//   - pricecast_errors_total: Counter of errors by component and reason
//
// All metrics carry the series label.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/pricecast/pkg/models"
)

// Metrics holds the pipeline metrics of one series.
type Metrics struct {
	AdapterCollectSeconds prometheus.Histogram
	SearchSeconds         prometheus.Histogram
	ForecastSeconds       prometheus.Histogram
	CandidatesTotal       *prometheus.CounterVec
	CandidateFitSeconds   *prometheus.HistogramVec
	SelectedAICc          prometheus.Gauge
	SelectedOrder         *prometheus.GaugeVec
	NextForecast          *prometheus.GaugeVec
	ForecastAgeSeconds    prometheus.Gauge
	CacheTotal            *prometheus.CounterVec
	ErrorsTotal           *prometheus.CounterVec
}

// New creates the metrics for series and registers them with reg. A nil
// reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, series string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"series": series}

	return &Metrics{
		AdapterCollectSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "pricecast_adapter_collect_seconds",
			Help:        "Time spent collecting the series from the adapter",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		SearchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "pricecast_search_seconds",
			Help:        "Time spent fitting and scoring the candidate grid",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.05, 2, 12),
		}),

		ForecastSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "pricecast_forecast_seconds",
			Help:        "Time spent computing the forecast horizon",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		CandidatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricecast_candidates_total",
			Help:        "Candidate orders evaluated, by outcome (fitted, insufficient_data, not_converged)",
			ConstLabels: labels,
		}, []string{"outcome"}),

		CandidateFitSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pricecast_candidate_fit_seconds",
			Help:        "Time spent fitting one candidate order, by differencing order and outcome",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"d", "outcome"}),

		SelectedAICc: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "pricecast_selected_aicc",
			Help:        "AICc of the selected model",
			ConstLabels: labels,
		}),

		SelectedOrder: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "pricecast_selected_order",
			Help:        "Set to 1 for the currently selected ARIMA order",
			ConstLabels: labels,
		}, []string{"p", "d", "q"}),

		NextForecast: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "pricecast_next_forecast",
			Help:        "First point of the latest forecast (mean, lower, upper)",
			ConstLabels: labels,
		}, []string{"bound"}),

		ForecastAgeSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "pricecast_forecast_age_seconds",
			Help:        "Age of the current forecast in seconds",
			ConstLabels: labels,
		}),

		CacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricecast_search_cache_total",
			Help:        "Search cache lookups by result (hit, miss)",
			ConstLabels: labels,
		}, []string{"result"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricecast_errors_total",
			Help:        "Total number of errors by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),
	}
}

// RecordCollect records the time spent collecting.
func (m *Metrics) RecordCollect(seconds float64) {
	m.AdapterCollectSeconds.Observe(seconds)
}

// RecordSearch records a completed search.
func (m *Metrics) RecordSearch(seconds float64, res *models.SearchResult) {
	m.SearchSeconds.Observe(seconds)
	m.CandidatesTotal.WithLabelValues("fitted").Add(float64(res.Tried - res.Failed))
	for _, f := range res.Failures {
		m.CandidatesTotal.WithLabelValues(FailureReason(f)).Inc()
	}
	m.SelectedAICc.Set(res.AICc)
	m.SelectedOrder.Reset()
	m.SelectedOrder.WithLabelValues(
		strconv.Itoa(res.Order.P),
		strconv.Itoa(res.Order.D),
		strconv.Itoa(res.Order.Q),
	).Set(1)
}

// RecordCandidate records the fit time of one candidate. It is safe to
// call from the search workers.
func (m *Metrics) RecordCandidate(c models.Candidate) {
	outcome := "fitted"
	var fe *models.FitError
	if errors.As(c.Err, &fe) {
		outcome = FailureReason(fe)
	}
	m.CandidateFitSeconds.WithLabelValues(strconv.Itoa(c.Order.D), outcome).Observe(c.Duration.Seconds())
}

// RecordForecast records the time spent forecasting and the first point.
func (m *Metrics) RecordForecast(seconds float64, fc *models.ForecastResult) {
	m.ForecastSeconds.Observe(seconds)
	if len(fc.Points) == 0 {
		return
	}
	p := fc.Points[0]
	m.NextForecast.WithLabelValues("mean").Set(p.Mean)
	m.NextForecast.WithLabelValues("lower").Set(p.Lower)
	m.NextForecast.WithLabelValues("upper").Set(p.Upper)
}

// SetForecastAge sets the current forecast age.
func (m *Metrics) SetForecastAge(seconds float64) {
	m.ForecastAgeSeconds.Set(seconds)
}

// RecordCache counts a cache lookup.
func (m *Metrics) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheTotal.WithLabelValues(result).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

// FailureReason is the outcome label of a failed candidate.
func FailureReason(err *models.FitError) string {
	if errors.Is(err, models.ErrInsufficientData) {
		return "insufficient_data"
	}
	return "not_converged"
}
