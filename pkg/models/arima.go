// Package models fits, scores and forecasts ARIMA models on hourly series.
//
// The entry points are Fit (one order), Search (a grid of orders scored by
// AICc) and Forecast (point forecast with a two-sided interval). Everything
// here is pure: a fitted model never changes after Fit returns, so models
// and series can be shared freely between goroutines.
package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/HatiCode/pricecast/pkg/series"
)

// Order is an ARIMA(p,d,q) specification.
type Order struct {
	P int `json:"p" yaml:"p"`
	D int `json:"d" yaml:"d"`
	Q int `json:"q" yaml:"q"`
}

func (o Order) String() string {
	return fmt.Sprintf("arima(%d,%d,%d)", o.P, o.D, o.Q)
}

// Validate reports whether the order can be fitted: p and q non-negative,
// d either 0 or 1.
func (o Order) Validate() error {
	if o.P < 0 || o.Q < 0 {
		return fmt.Errorf("%w: %s: p and q must be >= 0", ErrInvalidOrder, o)
	}
	if o.D != 0 && o.D != 1 {
		return fmt.Errorf("%w: %s: d must be 0 or 1", ErrInvalidOrder, o)
	}
	return nil
}

// NumParams is the parameter count k used by the information criterion:
// p + q + 1 for the noise variance, plus one for the intercept when d = 0.
func (o Order) NumParams() int {
	k := o.P + o.Q + 1
	if o.D == 0 {
		k++
	}
	return k
}

// Params are the estimated coefficients of a fitted model.
type Params struct {
	AR           []float64 `json:"ar" yaml:"ar"`
	MA           []float64 `json:"ma" yaml:"ma"`
	Intercept    float64   `json:"intercept" yaml:"intercept"`
	HasIntercept bool      `json:"has_intercept" yaml:"has_intercept"`
	Sigma2       float64   `json:"sigma2" yaml:"sigma2"`
}

// FittedModel is an ARIMA model estimated by exact maximum likelihood.
type FittedModel struct {
	Order       Order
	AR          []float64 // φ_1..φ_p, model 1 − φ_1 B − ... − φ_p B^p
	MA          []float64 // θ_1..θ_q, model 1 + θ_1 B + ... + θ_q B^q
	Intercept   float64   // mean of the series, d = 0 only
	Sigma2      float64   // innovation variance
	LogLik      float64
	NObs        int // observations after differencing
	K           int // parameter count
	Iterations  int
	Evaluations int

	name      string
	step      time.Duration
	lastTime  time.Time
	lastValue float64
	state     []float64 // a_{n+1|n} of the ARMA part
}

// Params returns a copy of the estimated coefficients.
func (m *FittedModel) Params() Params {
	return Params{
		AR:           append([]float64(nil), m.AR...),
		MA:           append([]float64(nil), m.MA...),
		Intercept:    m.Intercept,
		HasIntercept: m.Order.D == 0,
		Sigma2:       m.Sigma2,
	}
}

// AICc scores the model. Fit rejects n <= k+1, so approx is always false
// for a fitted model.
func (m *FittedModel) AICc() (value float64, approx bool) {
	return AICc(m.LogLik, m.K, m.NObs)
}

// SeriesName is the name of the series the model was fitted on.
func (m *FittedModel) SeriesName() string {
	return m.name
}

// LastObservation returns the timestamp and value the forecast continues from.
func (m *FittedModel) LastObservation() (time.Time, float64) {
	return m.lastTime, m.lastValue
}

const (
	// invalidPenalty replaces the objective at points where the likelihood
	// is undefined, so the optimiser never sees NaN.
	invalidPenalty = 1e100

	maxIterations  = 10000
	maxEvaluations = 20000
)

// Fit estimates an ARIMA model of the given order on s.
//
// The series is validated first. Failures specific to the candidate are
// returned as *FitError wrapping ErrFit or ErrInsufficientData.
func Fit(ctx context.Context, s *series.Series, order Order) (*FittedModel, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return fit(ctx, s, order)
}

func fit(ctx context.Context, s *series.Series, order Order) (*FittedModel, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := series.Difference(s.Values, order.D)
	n := len(w)
	k := order.NumParams()
	if n <= k+1 {
		return nil, &FitError{
			Order:  order,
			Err:    ErrInsufficientData,
			Detail: fmt.Sprintf("%d observations for %d parameters", n, k),
		}
	}

	obj := newObjective(w, order)
	if isConstant(w) {
		return nil, &FitError{Order: order, Err: ErrFit, Detail: "series is constant after differencing"}
	}
	x0 := obj.start()

	var (
		x           []float64
		iterations  int
		evaluations int
	)
	if len(x0) == 0 {
		x = x0
		evaluations = 1
	} else {
		problem := optimize.Problem{
			Func: obj.value,
			Status: func() (optimize.Status, error) {
				if err := ctx.Err(); err != nil {
					return optimize.Failure, err
				}
				return optimize.NotTerminated, nil
			},
		}
		settings := &optimize.Settings{
			MajorIterations: maxIterations,
			FuncEvaluations: maxEvaluations,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-9,
				Relative:   1e-9,
				Iterations: 50,
			},
		}

		result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{SimplexSize: 0.1})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if result == nil {
			return nil, &FitError{Order: order, Err: ErrFit, Detail: errString(err)}
		}
		switch result.Status {
		case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge,
			optimize.StepConvergence, optimize.FunctionThreshold:
		case optimize.IterationLimit, optimize.FunctionEvaluationLimit:
			return nil, &FitError{
				Order:  order,
				Err:    ErrFit,
				Detail: fmt.Sprintf("no convergence after %d evaluations", result.Stats.FuncEvaluations),
			}
		default:
			detail := result.Status.String()
			if err != nil {
				detail = err.Error()
			}
			return nil, &FitError{Order: order, Err: ErrFit, Detail: detail}
		}
		x = result.Location.X
		iterations = result.Stats.MajorIterations
		evaluations = result.Stats.FuncEvaluations
	}

	ar, ma, mu := obj.decode(x)
	res, err := obj.evaluate(ar, ma, mu)
	if err != nil {
		return nil, &FitError{Order: order, Err: ErrFit, Detail: err.Error()}
	}

	lastTime, lastValue := s.Last()
	return &FittedModel{
		Order:       order,
		AR:          ar,
		MA:          ma,
		Intercept:   mu,
		Sigma2:      res.sigma2(),
		LogLik:      res.logLik(),
		NObs:        n,
		K:           k,
		Iterations:  iterations,
		Evaluations: evaluations,
		name:        s.Name,
		step:        s.Step,
		lastTime:    lastTime,
		lastValue:   lastValue,
		state:       res.state,
	}, nil
}

func errString(err error) string {
	if err == nil {
		return "optimiser returned no result"
	}
	return err.Error()
}

var errDegenerate = errors.New("non-finite likelihood or vanishing innovation variance")

// minRelSigma2 is the smallest innovation variance, relative to the sample
// variance of the differenced series, accepted as a real fit. Below it the
// residuals are rounding noise.
const minRelSigma2 = 1e-12

// objective is the negative mean log-likelihood of ARMA(p,q) on w, over
// unconstrained parameters x = [AR pacf | MA pacf | u]. The buffer y is
// reused between evaluations; Nelder–Mead evaluates serially.
type objective struct {
	w         []float64
	p, q      int
	intercept bool
	mean, sd  float64
	variance  float64 // sample variance of w
	y         []float64
}

func newObjective(w []float64, order Order) *objective {
	mean, sd := meanStd(w)
	variance := sd * sd
	if sd == 0 {
		sd = 1
	}
	return &objective{
		w:         w,
		p:         order.P,
		q:         order.Q,
		intercept: order.D == 0,
		mean:      mean,
		sd:        sd,
		variance:  variance,
		y:         make([]float64, len(w)),
	}
}

// start is the deterministic initial point: Yule–Walker AR coefficients,
// zero MA coefficients and the sample mean.
func (o *objective) start() []float64 {
	x := make([]float64, 0, o.p+o.q+1)
	if o.p > 0 {
		x = append(x, coeffsToPACF(yuleWalker(o.w, o.p))...)
	}
	x = append(x, make([]float64, o.q)...)
	if o.intercept {
		x = append(x, 0)
	}
	return x
}

func (o *objective) decode(x []float64) (ar, ma []float64, mu float64) {
	ar = pacfToCoeffs(x[:o.p])
	if ar == nil {
		ar = []float64{}
	}
	ma = pacfToCoeffs(x[o.p : o.p+o.q])
	if ma == nil {
		ma = []float64{}
	}
	for i := range ma {
		ma[i] = -ma[i]
	}
	if o.intercept {
		mu = o.mean + o.sd*x[o.p+o.q]
	}
	return ar, ma, mu
}

func (o *objective) evaluate(ar, ma []float64, mu float64) (filterResult, error) {
	for i, v := range o.w {
		o.y[i] = v - mu
	}
	res, err := newStateSpace(ar, ma).filter(o.y)
	if err != nil {
		return filterResult{}, err
	}
	s2 := res.sigma2()
	if !(s2 > minRelSigma2*o.variance) || math.IsInf(s2, 0) || math.IsNaN(res.logLik()) || math.IsInf(res.logLik(), 0) {
		return filterResult{}, errDegenerate
	}
	return res, nil
}

func (o *objective) value(x []float64) float64 {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalidPenalty
		}
	}
	ar, ma, mu := o.decode(x)
	res, err := o.evaluate(ar, ma, mu)
	if err != nil {
		return invalidPenalty
	}
	return -res.logLik() / float64(res.n)
}

func isConstant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

func meanStd(values []float64) (mean, sd float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(values)))
}
