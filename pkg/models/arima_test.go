package models

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/HatiCode/pricecast/pkg/series"
)

func TestOrder_Validate(t *testing.T) {
	tests := []struct {
		order   Order
		wantErr bool
	}{
		{Order{0, 0, 0}, false},
		{Order{3, 1, 3}, false},
		{Order{-1, 0, 0}, true},
		{Order{0, 2, 0}, true},
		{Order{0, 0, -2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.order.String(), func(t *testing.T) {
			err := tt.order.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidOrder) {
				t.Errorf("error %v does not wrap ErrInvalidOrder", err)
			}
		})
	}
}

func TestOrder_NumParams(t *testing.T) {
	if got := (Order{1, 0, 1}).NumParams(); got != 4 {
		t.Errorf("NumParams(1,0,1) = %d, want 4", got)
	}
	if got := (Order{1, 1, 1}).NumParams(); got != 3 {
		t.Errorf("NumParams(1,1,1) = %d, want 3", got)
	}
	if got := (Order{0, 1, 0}).NumParams(); got != 1 {
		t.Errorf("NumParams(0,1,0) = %d, want 1", got)
	}
}

func TestFit_ParameterRecovery(t *testing.T) {
	if testing.Short() {
		t.Skip("long synthetic series")
	}

	tests := []struct {
		name   string
		values []float64
		order  Order
		ar, ma []float64
		tol    float64
	}{
		{
			name:   "AR(1)",
			values: simulateARMA(1, 2000, []float64{0.6}, nil, 50),
			order:  Order{1, 0, 0},
			ar:     []float64{0.6},
			tol:    0.06,
		},
		{
			name:   "MA(1)",
			values: simulateARMA(2, 2000, nil, []float64{0.5}, 30),
			order:  Order{0, 0, 1},
			ma:     []float64{0.5},
			tol:    0.07,
		},
		{
			name:   "ARMA(1,1)",
			values: simulateARMA(3, 3000, []float64{0.5}, []float64{0.3}, 40),
			order:  Order{1, 0, 1},
			ar:     []float64{0.5},
			ma:     []float64{0.3},
			tol:    0.1,
		},
		{
			name:   "ARIMA(1,1,0)",
			values: integrate(simulateARMA(4, 2000, []float64{0.5}, nil, 0), 40),
			order:  Order{1, 1, 0},
			ar:     []float64{0.5},
			tol:    0.06,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Fit(context.Background(), hourly(tt.values), tt.order)
			if err != nil {
				t.Fatalf("Fit() error = %v", err)
			}
			for i, want := range tt.ar {
				if !near(m.AR[i], want, tt.tol) {
					t.Errorf("AR[%d] = %.4f, want %.2f ± %.2f", i, m.AR[i], want, tt.tol)
				}
			}
			for i, want := range tt.ma {
				if !near(m.MA[i], want, tt.tol) {
					t.Errorf("MA[%d] = %.4f, want %.2f ± %.2f", i, m.MA[i], want, tt.tol)
				}
			}
			if !near(m.Sigma2, 1, 0.1) {
				t.Errorf("Sigma2 = %.4f, want ~1", m.Sigma2)
			}
			if m.NObs != len(tt.values)-tt.order.D {
				t.Errorf("NObs = %d, want %d", m.NObs, len(tt.values)-tt.order.D)
			}
			if m.K != tt.order.NumParams() {
				t.Errorf("K = %d, want %d", m.K, tt.order.NumParams())
			}
		})
	}
}

func TestFit_Intercept(t *testing.T) {
	m, err := Fit(context.Background(), hourly(simulateARMA(5, 2000, []float64{0.6}, nil, 50)), Order{1, 0, 0})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if !near(m.Intercept, 50, 0.5) {
		t.Errorf("Intercept = %.3f, want ~50", m.Intercept)
	}
	if p := m.Params(); !p.HasIntercept || len(p.AR) != 1 || len(p.MA) != 0 {
		t.Errorf("Params() = %+v", p)
	}

	d1, err := Fit(context.Background(), hourly(integrate(simulateARMA(6, 500, nil, nil, 0), 10)), Order{1, 1, 0})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if d1.Intercept != 0 || d1.Params().HasIntercept {
		t.Errorf("d=1 model has intercept %v", d1.Intercept)
	}
}

func TestFit_RandomWalkClosedForm(t *testing.T) {
	values := integrate(simulateARMA(8, 300, nil, nil, 0), 100)
	m, err := Fit(context.Background(), hourly(values), Order{0, 1, 0})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	w := series.Diff(values)
	var ss float64
	for _, v := range w {
		ss += v * v
	}
	n := float64(len(w))
	sigma2 := ss / n
	wantLogL := -0.5 * n * (math.Log(2*math.Pi) + math.Log(sigma2) + 1)

	if !near(m.Sigma2, sigma2, 1e-12) {
		t.Errorf("Sigma2 = %v, want %v", m.Sigma2, sigma2)
	}
	if !near(m.LogLik, wantLogL, 1e-8) {
		t.Errorf("LogLik = %v, want %v", m.LogLik, wantLogL)
	}
	if m.Iterations != 0 {
		t.Errorf("Iterations = %d, want 0 for a model without free parameters", m.Iterations)
	}
}

func TestFit_InsufficientData(t *testing.T) {
	// (1,0,1): k = 4, n = 5 <= k+1
	_, err := Fit(context.Background(), hourly([]float64{1, 2, 3, 2, 1}), Order{1, 0, 1})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("Fit() error = %v, want ErrInsufficientData", err)
	}
	var fe *FitError
	if !errors.As(err, &fe) || fe.Order != (Order{1, 0, 1}) {
		t.Errorf("error %v is not a *FitError for the order", err)
	}
}

func TestFit_BoundaryLength(t *testing.T) {
	orders := []Order{{1, 1, 1}, {1, 0, 1}, {3, 0, 3}, {0, 0, 0}}
	for _, o := range orders {
		t.Run(o.String(), func(t *testing.T) {
			// n = k + 2 after differencing
			length := o.NumParams() + 2 + o.D
			values := simulateARMA(9, length, nil, nil, 5)

			m, err := Fit(context.Background(), hourly(values), o)
			if err != nil {
				if !errors.Is(err, ErrFit) && !errors.Is(err, ErrInsufficientData) {
					t.Fatalf("Fit() error = %v, want a fit failure", err)
				}
				return
			}
			if m.NObs != o.NumParams()+2 {
				t.Errorf("NObs = %d, want %d", m.NObs, o.NumParams()+2)
			}
			if math.IsNaN(m.LogLik) {
				t.Error("LogLik is NaN")
			}
		})
	}
}

func constant(v float64, n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	return values
}

func TestFit_ConstantSeries(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		order  Order
	}{
		{"random walk", constant(7, 10), Order{0, 1, 0}},
		{"white noise", constant(7, 50), Order{0, 0, 0}},
		{"ar1", constant(7, 50), Order{1, 0, 0}},
		{"arma22", constant(7, 50), Order{2, 0, 2}},
		{"inexact level", constant(0.1, 50), Order{1, 0, 1}},
		{"linear trend", integrate(constant(0.5, 49), 3), Order{1, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Fit(context.Background(), hourly(tt.values), tt.order)
			if !errors.Is(err, ErrFit) {
				t.Fatalf("Fit(%s) error = %v, want ErrFit", tt.order, err)
			}
			if m != nil {
				t.Errorf("Fit(%s) returned a model with sigma2 %v", tt.order, m.Sigma2)
			}
		})
	}
}

func TestSearch_ConstantSeries(t *testing.T) {
	_, err := Search(context.Background(), hourly(constant(7, 50)), DefaultGrid())
	if !errors.Is(err, ErrSearchExhausted) {
		t.Fatalf("Search() error = %v, want ErrSearchExhausted", err)
	}
	var se *SearchError
	if !errors.As(err, &se) || se.Tried != 32 || len(se.Failures) != 32 {
		t.Errorf("SearchError = %+v, want 32 failures out of 32", se)
	}
}

func TestFit_InvalidInput(t *testing.T) {
	s := hourly(simulateARMA(10, 50, nil, nil, 0))
	if _, err := Fit(context.Background(), s, Order{1, 2, 0}); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("Fit() error = %v, want ErrInvalidOrder", err)
	}

	bad := hourly([]float64{1, math.NaN(), 3})
	if _, err := Fit(context.Background(), bad, Order{0, 0, 0}); !errors.Is(err, series.ErrMalformed) {
		t.Errorf("Fit() error = %v, want ErrMalformed", err)
	}
}

func TestFit_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Fit(ctx, hourly(simulateARMA(11, 200, []float64{0.5}, nil, 0)), Order{1, 0, 0})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fit() error = %v, want context.Canceled", err)
	}
}

func TestFitError_Message(t *testing.T) {
	err := &FitError{Order: Order{2, 1, 1}, Err: ErrFit, Detail: "no convergence after 20000 evaluations"}
	want := "arima(2,1,1): fit failed: no convergence after 20000 evaluations"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
