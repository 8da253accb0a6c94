package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/pricecast/pkg/models"
)

func TestNewSnapshot(t *testing.T) {
	res := &models.SearchResult{
		Best:   &models.FittedModel{Order: models.Order{P: 1, D: 1, Q: 1}, AR: []float64{0.5}, MA: []float64{0.2}, Sigma2: 3},
		Order:  models.Order{P: 1, D: 1, Q: 1},
		AICc:   812.3,
		Tried:  32,
		Failed: 1,
	}
	fc := &models.ForecastResult{
		Series: "price",
		Order:  res.Order,
		Level:  0.9,
		Points: make([]models.ForecastPoint, 24),
	}
	now := time.Date(2020, 9, 30, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	snap := NewSnapshot(res, fc, now)
	if _, err := uuid.Parse(snap.ID); err != nil {
		t.Errorf("ID %q is not a uuid: %v", snap.ID, err)
	}
	if snap.Series != "price" || snap.Order != res.Order || snap.AICc != 812.3 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Candidates != 32 || snap.Failed != 1 || snap.Level != 0.9 || len(snap.Points) != 24 {
		t.Errorf("snapshot summary = %+v", snap)
	}
	if snap.GeneratedAt.Location() != time.UTC || !snap.GeneratedAt.Equal(now) {
		t.Errorf("GeneratedAt = %v, want %v in UTC", snap.GeneratedAt, now)
	}
	if snap.Params.Sigma2 != 3 || snap.Params.HasIntercept {
		t.Errorf("Params = %+v", snap.Params)
	}
}

func TestValidateSeriesName(t *testing.T) {
	valid := []string{"price", "DE_LU_price_day_ahead", "de-lu.v2"}
	for _, name := range valid {
		if err := ValidateSeriesName(name); err != nil {
			t.Errorf("ValidateSeriesName(%q) = %v", name, err)
		}
	}
	invalid := []string{"", "de lu", "a/b", "price:1"}
	for _, name := range invalid {
		if err := ValidateSeriesName(name); err == nil {
			t.Errorf("ValidateSeriesName(%q) = nil, want error", name)
		}
	}
}
