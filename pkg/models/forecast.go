package models

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// ForecastPoint is one future observation with its interval bounds.
type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Mean      float64   `json:"mean" yaml:"mean"`
	Lower     float64   `json:"lower" yaml:"lower"`
	Upper     float64   `json:"upper" yaml:"upper"`
}

// ForecastResult is a horizon of consecutive forecasts from one model.
type ForecastResult struct {
	Series string          `json:"series" yaml:"series"`
	Order  Order           `json:"order" yaml:"order"`
	Level  float64         `json:"level" yaml:"level"`
	Points []ForecastPoint `json:"points" yaml:"points"`
}

var errInvalidHorizon = errors.New("horizon must be positive")

// Forecast projects m horizon steps past its last observation.
//
// Point forecasts are the conditional means of the fitted state-space model,
// re-integrated from the last observed value when d = 1. The interval at
// step h is mean ± z·σ·sqrt(Σ_{j<h} ψ_j²), with ψ the MA(∞) weights of the
// full ARIMA model and z the standard normal quantile for level.
func Forecast(m *FittedModel, horizon int, level float64) (*ForecastResult, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: got %d", errInvalidHorizon, horizon)
	}
	if err := ValidateConfidenceLevel(level); err != nil {
		return nil, err
	}

	z := distuv.UnitNormal.Quantile(1 - (1-level)/2)
	psi := psiWeights(m.AR, m.MA, m.Order.D, horizon)

	ss := newStateSpace(m.AR, m.MA)
	a := make([]float64, ss.r)
	copy(a, m.state)
	next := make([]float64, ss.r)

	points := make([]ForecastPoint, horizon)
	level0 := m.lastValue
	var cumPsi2 float64
	for h := 1; h <= horizon; h++ {
		w := a[0] + m.Intercept
		mean := w
		if m.Order.D == 1 {
			level0 += w
			mean = level0
		}

		cumPsi2 += psi[h-1] * psi[h-1]
		half := z * math.Sqrt(m.Sigma2*cumPsi2)

		points[h-1] = ForecastPoint{
			Timestamp: m.lastTime.Add(time.Duration(h) * m.step),
			Mean:      mean,
			Lower:     mean - half,
			Upper:     mean + half,
		}

		ss.transition(next, a)
		a, next = next, a
	}

	return &ForecastResult{
		Series: m.name,
		Order:  m.Order,
		Level:  level,
		Points: points,
	}, nil
}

// psiWeights returns ψ_0..ψ_{n-1} of θ(B) / (φ(B)(1−B)^d).
func psiWeights(ar, ma []float64, d, n int) []float64 {
	// φ*(B) = φ(B)(1−B)^d = 1 − Σ arStar_i B^i
	poly := make([]float64, len(ar)+1)
	poly[0] = 1
	for i, c := range ar {
		poly[i+1] = -c
	}
	for range d {
		next := make([]float64, len(poly)+1)
		for i, c := range poly {
			next[i] += c
			next[i+1] -= c
		}
		poly = next
	}
	arStar := make([]float64, len(poly)-1)
	for i := range arStar {
		arStar[i] = -poly[i+1]
	}

	psi := make([]float64, n)
	psi[0] = 1
	for j := 1; j < n; j++ {
		var v float64
		if j <= len(ma) {
			v = ma[j-1]
		}
		for i := 1; i <= min(j, len(arStar)); i++ {
			v += arStar[i-1] * psi[j-i]
		}
		psi[j] = v
	}
	return psi
}
