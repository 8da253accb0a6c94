package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOrder is returned for orders outside p,q >= 0, d in {0,1}.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrFit reports a candidate whose likelihood optimisation did not
	// converge or left the stationary/invertible region.
	ErrFit = errors.New("fit failed")

	// ErrInsufficientData reports a candidate with n <= k+1.
	ErrInsufficientData = errors.New("insufficient observations")

	// ErrSearchExhausted is returned when no candidate in the grid fits.
	ErrSearchExhausted = errors.New("no candidate order could be fitted")
)

// FitError is the per-candidate failure. Search records it and moves on.
type FitError struct {
	Order  Order
	Err    error // ErrFit or ErrInsufficientData
	Detail string
}

func (e *FitError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Order, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Order, e.Err, e.Detail)
}

func (e *FitError) Unwrap() error {
	return e.Err
}

// SearchError is returned when every candidate failed. It carries enough
// detail to tell a too-narrow grid from a too-short series.
type SearchError struct {
	Tried    int
	Failures []*FitError
}

func (e *SearchError) Error() string {
	var short, diverged int
	for _, f := range e.Failures {
		if errors.Is(f, ErrInsufficientData) {
			short++
		} else {
			diverged++
		}
	}
	return fmt.Sprintf("%v: %d of %d candidates failed (%d insufficient data, %d did not converge)",
		ErrSearchExhausted, len(e.Failures), e.Tried, short, diverged)
}

func (e *SearchError) Unwrap() error {
	return ErrSearchExhausted
}
