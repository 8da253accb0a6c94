// Package series provides the evenly spaced time series consumed by the
// forecasting models.
//
// A Series is an ordered set of (timestamp, value) observations at a fixed
// step (one hour for day-ahead electricity prices). Models assume the series
// is contiguous, so every provider output must pass Validate before fitting.
package series

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"time"
)

// DefaultStep is the native frequency of price series.
const DefaultStep = time.Hour

// ErrMalformed is returned (wrapped in *MalformedError) when a series has
// gaps, duplicates, non-monotonic timestamps or non-finite values.
var ErrMalformed = errors.New("malformed series")

// MalformedError describes the first offending observation in a series.
type MalformedError struct {
	Index  int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%v at index %d: %s", ErrMalformed, e.Index, e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformed
}

// Series is a univariate time series with a fixed step between observations.
type Series struct {
	Name       string
	Step       time.Duration
	Timestamps []time.Time
	Values     []float64
}

// New creates a series from parallel timestamp and value slices.
// The slices are used as-is; call Validate before handing it to a model.
func New(name string, step time.Duration, timestamps []time.Time, values []float64) *Series {
	if step <= 0 {
		step = DefaultStep
	}
	return &Series{
		Name:       name,
		Step:       step,
		Timestamps: timestamps,
		Values:     values,
	}
}

// Regular creates a series of len(values) observations starting at start
// and spaced by step.
func Regular(name string, start time.Time, step time.Duration, values []float64) *Series {
	if step <= 0 {
		step = DefaultStep
	}
	ts := make([]time.Time, len(values))
	for i := range values {
		ts[i] = start.Add(time.Duration(i) * step)
	}
	return New(name, step, ts, values)
}

// Len returns the number of observations.
func (s *Series) Len() int {
	return len(s.Values)
}

// Validate checks that the series is non-empty, strictly increasing at a
// uniform step, free of duplicates and holds only finite values.
func (s *Series) Validate() error {
	if len(s.Timestamps) != len(s.Values) {
		return &MalformedError{Index: 0, Reason: fmt.Sprintf("%d timestamps for %d values", len(s.Timestamps), len(s.Values))}
	}
	if len(s.Values) == 0 {
		return &MalformedError{Index: 0, Reason: "series is empty"}
	}
	if s.Step <= 0 {
		return &MalformedError{Index: 0, Reason: fmt.Sprintf("invalid step %v", s.Step)}
	}

	for i, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &MalformedError{Index: i, Reason: "non-finite value"}
		}
		if i == 0 {
			continue
		}
		delta := s.Timestamps[i].Sub(s.Timestamps[i-1])
		switch {
		case delta == 0:
			return &MalformedError{Index: i, Reason: fmt.Sprintf("duplicate timestamp %s", s.Timestamps[i].Format(time.RFC3339))}
		case delta < 0:
			return &MalformedError{Index: i, Reason: fmt.Sprintf("timestamp %s is before its predecessor", s.Timestamps[i].Format(time.RFC3339))}
		case delta != s.Step:
			return &MalformedError{Index: i, Reason: fmt.Sprintf("gap of %v after %s (step %v)", delta, s.Timestamps[i-1].Format(time.RFC3339), s.Step)}
		}
	}

	return nil
}

// Last returns the final timestamp and value. It panics on an empty series.
func (s *Series) Last() (time.Time, float64) {
	n := len(s.Values)
	return s.Timestamps[n-1], s.Values[n-1]
}

// Tail returns a series holding the last n observations. The returned
// series shares storage with s.
func (s *Series) Tail(n int) *Series {
	if n <= 0 || n >= len(s.Values) {
		return s
	}
	start := len(s.Values) - n
	return &Series{
		Name:       s.Name,
		Step:       s.Step,
		Timestamps: s.Timestamps[start:],
		Values:     s.Values[start:],
	}
}

// Window keeps the observations within window of the last timestamp
// (inclusive of the last one). A non-positive window returns s unchanged.
func (s *Series) Window(window time.Duration) *Series {
	if window <= 0 || len(s.Values) == 0 {
		return s
	}
	points := int(window / s.Step)
	if points < 1 {
		points = 1
	}
	return s.Tail(points)
}

// Diff returns the first difference of the values. The result has one
// observation fewer than s.
func Diff(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}
	out := make([]float64, len(values)-1)
	for i := 0; i < len(values)-1; i++ {
		out[i] = values[i+1] - values[i]
	}
	return out
}

// Difference applies Diff d times.
func Difference(values []float64, d int) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	for range d {
		out = Diff(out)
	}
	return out
}

// Fingerprint returns a stable hash of the step, timestamps and values.
func (s *Series) Fingerprint() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(s.Step))
	h.Write(buf[:])
	for i, v := range s.Values {
		binary.LittleEndian.PutUint64(buf[:], uint64(s.Timestamps[i].UnixNano()))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return h.Sum64()
}
