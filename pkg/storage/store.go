// Package storage provides forecast snapshot storage implementations.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/pricecast/pkg/models"
)

// Snapshot is one published forecast: the selected model, how it was
// selected and the forecast horizon it produced.
type Snapshot struct {
	ID          string                 `json:"id" yaml:"id"`
	Series      string                 `json:"series" yaml:"series"`
	GeneratedAt time.Time              `json:"generated_at" yaml:"generated_at"`
	Order       models.Order           `json:"order" yaml:"order"`
	AICc        float64                `json:"aicc" yaml:"aicc"`
	Params      models.Params          `json:"params" yaml:"params"`
	Level       float64                `json:"level" yaml:"level"`
	Candidates  int                    `json:"candidates" yaml:"candidates"`
	Failed      int                    `json:"failed" yaml:"failed"`
	Points      []models.ForecastPoint `json:"points" yaml:"points"`
}

// Store persists the latest snapshot per series.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, series string) (Snapshot, bool, error)
}

// NewSnapshot assembles a snapshot from a search and the forecast of its
// winning model.
func NewSnapshot(res *models.SearchResult, fc *models.ForecastResult, now time.Time) Snapshot {
	return Snapshot{
		ID:          uuid.NewString(),
		Series:      fc.Series,
		GeneratedAt: now.UTC(),
		Order:       res.Order,
		AICc:        res.AICc,
		Params:      res.Best.Params(),
		Level:       fc.Level,
		Candidates:  res.Tried,
		Failed:      res.Failed,
		Points:      fc.Points,
	}
}

// ValidateSeriesName accepts alphanumerics, hyphens, underscores and dots,
// which keeps names safe as Redis key segments.
func ValidateSeriesName(name string) error {
	if name == "" {
		return fmt.Errorf("series name required")
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.') {
			return fmt.Errorf("invalid series name %q: only alphanumeric, hyphens, underscores and dots allowed", name)
		}
	}
	return nil
}
