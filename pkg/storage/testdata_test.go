package storage

import (
	"time"

	"github.com/HatiCode/pricecast/pkg/models"
)

func testSnapshot(series string, generatedAt time.Time) Snapshot {
	base := time.Date(2020, 9, 30, 23, 0, 0, 0, time.UTC)
	points := make([]models.ForecastPoint, 3)
	for i := range points {
		mean := 40 + float64(i)
		points[i] = models.ForecastPoint{
			Timestamp: base.Add(time.Duration(i+1) * time.Hour),
			Mean:      mean,
			Lower:     mean - 5,
			Upper:     mean + 5,
		}
	}
	return Snapshot{
		ID:          series + "-" + generatedAt.Format("150405.000000000"),
		Series:      series,
		GeneratedAt: generatedAt.UTC(),
		Order:       models.Order{P: 1, D: 1, Q: 1},
		AICc:        1234.5,
		Params: models.Params{
			AR:     []float64{0.6},
			MA:     []float64{0.4},
			Sigma2: 2.5,
		},
		Level:      0.95,
		Candidates: 32,
		Failed:     2,
		Points:     points,
	}
}
