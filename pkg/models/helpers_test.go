package models

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/HatiCode/pricecast/pkg/series"
)

var start = time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC)

// simulateARMA draws n observations of mean + ARMA(ar, ma) with unit
// innovation variance from a fixed seed.
func simulateARMA(seed uint64, n int, ar, ma []float64, mean float64) []float64 {
	const burnIn = 500
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	total := n + burnIn
	x := make([]float64, total)
	e := make([]float64, total)
	for t := range total {
		e[t] = rng.NormFloat64()
		v := e[t]
		for i, phi := range ar {
			if t-i-1 >= 0 {
				v += phi * x[t-i-1]
			}
		}
		for j, theta := range ma {
			if t-j-1 >= 0 {
				v += theta * e[t-j-1]
			}
		}
		x[t] = v
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = x[burnIn+i] + mean
	}
	return out
}

// integrate returns the cumulative sum of w starting from level.
func integrate(w []float64, level float64) []float64 {
	out := make([]float64, len(w))
	for i, v := range w {
		level += v
		out[i] = level
	}
	return out
}

func hourly(values []float64) *series.Series {
	return series.Regular("price", start, time.Hour, values)
}

func near(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}
