package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/HatiCode/pricecast/pkg/models"
)

func TestRecordSearch(t *testing.T) {
	m := New(prometheus.NewRegistry(), "de-price")

	res := &models.SearchResult{
		Order:  models.Order{P: 1, D: 1, Q: 1},
		AICc:   1234.5,
		Tried:  4,
		Failed: 2,
		Failures: []*models.FitError{
			{Order: models.Order{P: 3, Q: 3}, Err: models.ErrInsufficientData},
			{Order: models.Order{P: 2, Q: 3}, Err: models.ErrFit},
		},
	}
	m.RecordSearch(0.5, res)

	if got := testutil.ToFloat64(m.CandidatesTotal.WithLabelValues("fitted")); got != 2 {
		t.Errorf("fitted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CandidatesTotal.WithLabelValues("insufficient_data")); got != 1 {
		t.Errorf("insufficient_data = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CandidatesTotal.WithLabelValues("not_converged")); got != 1 {
		t.Errorf("not_converged = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SelectedAICc); got != 1234.5 {
		t.Errorf("selected aicc = %v", got)
	}
	if got := testutil.ToFloat64(m.SelectedOrder.WithLabelValues("1", "1", "1")); got != 1 {
		t.Errorf("selected order gauge = %v", got)
	}

	res.Order = models.Order{P: 2, D: 0, Q: 0}
	m.RecordSearch(0.5, res)
	if got := testutil.CollectAndCount(m.SelectedOrder); got != 1 {
		t.Errorf("selected order series = %d, want 1 after reselection", got)
	}
}

func TestRecordCandidate(t *testing.T) {
	m := New(prometheus.NewRegistry(), "de-price")

	m.RecordCandidate(models.Candidate{Order: models.Order{P: 1, D: 1, Q: 1}, Duration: 20 * time.Millisecond})
	m.RecordCandidate(models.Candidate{Order: models.Order{P: 3, D: 0, Q: 3}, Err: &models.FitError{Err: models.ErrFit}})
	m.RecordCandidate(models.Candidate{Order: models.Order{P: 2, D: 0, Q: 3}, Err: &models.FitError{Err: models.ErrFit}})

	if got := testutil.CollectAndCount(m.CandidateFitSeconds); got != 2 {
		t.Errorf("candidate fit series = %d, want 2", got)
	}
}

func TestRecordForecast(t *testing.T) {
	m := New(prometheus.NewRegistry(), "de-price")

	m.RecordForecast(0.01, &models.ForecastResult{Points: []models.ForecastPoint{
		{Mean: 42, Lower: 30, Upper: 54},
		{Mean: 43, Lower: 25, Upper: 61},
	}})

	for bound, want := range map[string]float64{"mean": 42, "lower": 30, "upper": 54} {
		if got := testutil.ToFloat64(m.NextForecast.WithLabelValues(bound)); got != want {
			t.Errorf("%s = %v, want %v", bound, got, want)
		}
	}

	m.RecordForecast(0.01, &models.ForecastResult{})
}

func TestRecordCacheAndErrors(t *testing.T) {
	m := New(prometheus.NewRegistry(), "de-price")

	m.RecordCache(true)
	m.RecordCache(false)
	m.RecordCache(false)
	m.RecordError("adapter", "collect_failed")

	if got := testutil.ToFloat64(m.CacheTotal.WithLabelValues("miss")); got != 2 {
		t.Errorf("miss = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("adapter", "collect_failed")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestNewTwiceOnSeparateRegistries(t *testing.T) {
	New(prometheus.NewRegistry(), "a")
	New(prometheus.NewRegistry(), "a")
}
