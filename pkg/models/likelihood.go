package models

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// stateSpace is the Harvey representation of a zero-mean ARMA(p,q):
//
//	y_t     = Z α_t,              Z = [1 0 ... 0]
//	α_{t+1} = T α_t + R ε_{t+1},  ε ~ N(0, σ²)
//
// with r = max(p, q+1), T holding the AR coefficients in its first column
// and ones on the superdiagonal, and R = [1 θ_1 ... θ_{r-1}]'.
type stateSpace struct {
	r  int
	ar []float64 // padded to r
	rv []float64 // R, length r
}

func newStateSpace(ar, ma []float64) stateSpace {
	r := max(len(ar), len(ma)+1)
	ss := stateSpace{
		r:  r,
		ar: make([]float64, r),
		rv: make([]float64, r),
	}
	copy(ss.ar, ar)
	ss.rv[0] = 1
	copy(ss.rv[1:], ma)
	return ss
}

// transition writes T·a into dst.
func (ss stateSpace) transition(dst, a []float64) {
	r := ss.r
	a0 := a[0]
	for i := 0; i < r; i++ {
		v := ss.ar[i] * a0
		if i+1 < r {
			v += a[i+1]
		}
		dst[i] = v
	}
}

// transitionMatrix writes T·M into dst, both r×r row-major.
func (ss stateSpace) transitionMatrix(dst, m []float64) {
	r := ss.r
	for i := 0; i < r; i++ {
		for j := 0; j < r; j++ {
			v := ss.ar[i] * m[j]
			if i+1 < r {
				v += m[(i+1)*r+j]
			}
			dst[i*r+j] = v
		}
	}
}

var errNotStationary = errors.New("initial state covariance is not positive")

// initialCovariance solves the discrete Lyapunov equation P = T P T' + R R'
// for the unconditional state covariance (σ² = 1), via
// (I − T⊗T) vec(P) = vec(R R').
func (ss stateSpace) initialCovariance() ([]float64, error) {
	r := ss.r
	if r == 1 {
		den := 1 - ss.ar[0]*ss.ar[0]
		if den <= 0 {
			return nil, errNotStationary
		}
		return []float64{1 / den}, nil
	}

	tData := make([]float64, r*r)
	for i := 0; i < r; i++ {
		tData[i*r] = ss.ar[i]
		if i+1 < r {
			tData[i*r+i+1] = 1
		}
	}
	t := mat.NewDense(r, r, tData)

	var kron mat.Dense
	kron.Kronecker(t, t)

	rr := r * r
	a := mat.NewDense(rr, rr, nil)
	for i := 0; i < rr; i++ {
		for j := 0; j < rr; j++ {
			v := -kron.At(i, j)
			if i == j {
				v++
			}
			a.Set(i, j, v)
		}
	}

	q := mat.NewVecDense(rr, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < r; j++ {
			q.SetVec(i*r+j, ss.rv[i]*ss.rv[j])
		}
	}

	var vecP mat.VecDense
	if err := vecP.SolveVec(a, q); err != nil {
		return nil, err
	}

	p := make([]float64, rr)
	for i := range p {
		p[i] = vecP.AtVec(i)
	}
	for i := 0; i < r; i++ {
		if !(p[i*r+i] > 0) {
			return nil, errNotStationary
		}
	}
	return p, nil
}

// filterResult holds the sufficient statistics of one Kalman pass.
type filterResult struct {
	n       int
	sumSq   float64 // Σ v_t² / F_t
	sumLogF float64 // Σ log F_t
	state   []float64
}

// sigma2 is the concentrated maximum-likelihood innovation variance.
func (f filterResult) sigma2() float64 {
	return f.sumSq / float64(f.n)
}

// logLik is the exact Gaussian log-likelihood with σ² concentrated out.
func (f filterResult) logLik() float64 {
	n := float64(f.n)
	return -0.5*n*(math.Log(2*math.Pi)+math.Log(f.sigma2())+1) - 0.5*f.sumLogF
}

var errFilterBreakdown = errors.New("non-positive prediction variance")

// steadyTol is the element-wise change in P below which the covariance is
// treated as converged and no longer updated.
const steadyTol = 1e-11

// filter runs the Kalman filter over the demeaned series y. The returned
// state is the one-step-ahead prediction a_{n+1|n}.
func (ss stateSpace) filter(y []float64) (filterResult, error) {
	r := ss.r
	p, err := ss.initialCovariance()
	if err != nil {
		return filterResult{}, err
	}

	a := make([]float64, r)
	next := make([]float64, r)
	k := make([]float64, r)
	tp := make([]float64, r*r)
	pNext := make([]float64, r*r)
	steady := false

	res := filterResult{n: len(y)}
	for t, obs := range y {
		v := obs - a[0]
		f := p[0]
		if !(f > 0) || math.IsInf(f, 0) {
			return filterResult{}, errFilterBreakdown
		}

		if !steady {
			ss.transitionMatrix(tp, p)
		}
		// K = T P Z' / F
		for i := 0; i < r; i++ {
			k[i] = tp[i*r] / f
		}

		ss.transition(next, a)
		for i := 0; i < r; i++ {
			a[i] = next[i] + k[i]*v
		}

		res.sumSq += v * v / f
		res.sumLogF += math.Log(f)

		if steady || t == len(y)-1 {
			continue
		}

		// P_{t+1} = T P T' + R R' − K K' F
		delta := 0.0
		for i := 0; i < r; i++ {
			for j := 0; j < r; j++ {
				var tpt float64
				tpt = ss.ar[j] * tp[i*r]
				if j+1 < r {
					tpt += tp[i*r+j+1]
				}
				v := tpt + ss.rv[i]*ss.rv[j] - k[i]*k[j]*f
				delta = math.Max(delta, math.Abs(v-p[i*r+j]))
				pNext[i*r+j] = v
			}
		}
		p, pNext = pNext, p
		steady = delta < steadyTol
	}

	res.state = a
	return res, nil
}

// pacfToCoeffs maps unconstrained reals to the coefficients c of a
// stationary polynomial 1 − c_1 B − ... − c_m B^m. Each value is squashed
// to a partial autocorrelation in (−1, 1), then expanded with the
// Durbin–Levinson recursion.
func pacfToCoeffs(x []float64) []float64 {
	m := len(x)
	if m == 0 {
		return nil
	}
	c := make([]float64, m)
	prev := make([]float64, m)
	for k := 0; k < m; k++ {
		rk := x[k] / math.Sqrt(1+x[k]*x[k])
		copy(prev, c)
		for j := 0; j < k; j++ {
			c[j] = prev[j] - rk*prev[k-1-j]
		}
		c[k] = rk
	}
	return c
}

// coeffsToPACF inverts pacfToCoeffs. Coefficients outside the stationary
// region are pulled back inside by clamping each partial autocorrelation.
func coeffsToPACF(c []float64) []float64 {
	m := len(c)
	if m == 0 {
		return nil
	}
	const bound = 0.95
	cur := make([]float64, m)
	copy(cur, c)
	x := make([]float64, m)
	prev := make([]float64, m)
	for k := m - 1; k >= 0; k-- {
		rk := math.Max(-bound, math.Min(bound, cur[k]))
		x[k] = rk / math.Sqrt(1-rk*rk)
		den := 1 - rk*rk
		for j := 0; j < k; j++ {
			prev[j] = (cur[j] + rk*cur[k-1-j]) / den
		}
		copy(cur, prev[:k])
	}
	return x
}

// autocorr computes the sample autocorrelation of series at lag.
func autocorr(series []float64, lag int, mean float64) float64 {
	if lag < 0 || lag >= len(series) {
		return 0
	}
	var c0, ck float64
	for i, v := range series {
		c0 += (v - mean) * (v - mean)
		if i+lag < len(series) {
			ck += (v - mean) * (series[i+lag] - mean)
		}
	}
	if c0 == 0 {
		return 0
	}
	return ck / c0
}

// yuleWalker estimates AR(p) coefficients with the Levinson–Durbin
// recursion on the sample autocorrelations. It stops early (leaving the
// remaining coefficients at zero) when the recursion becomes unstable.
func yuleWalker(series []float64, p int) []float64 {
	coeffs := make([]float64, p)
	if p == 0 || len(series) <= p {
		return coeffs
	}

	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(len(series))

	acf := make([]float64, p+1)
	for k := 0; k <= p; k++ {
		acf[k] = autocorr(series, k, mean)
	}

	v := acf[0]
	prev := make([]float64, p)
	for k := 0; k < p; k++ {
		if v <= 0 {
			break
		}
		num := acf[k+1]
		for j := 0; j < k; j++ {
			num -= coeffs[j] * acf[k-j]
		}
		rk := num / v
		copy(prev, coeffs)
		for j := 0; j < k; j++ {
			coeffs[j] = prev[j] - rk*prev[k-1-j]
		}
		coeffs[k] = rk
		v *= 1 - rk*rk
	}
	return coeffs
}
