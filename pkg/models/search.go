package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/pricecast/pkg/series"
)

// Grid is the bounded set of candidate orders explored by Search.
type Grid struct {
	D    []int `json:"d" yaml:"d"`
	MaxP int   `json:"max_p" yaml:"max_p"`
	MaxQ int   `json:"max_q" yaml:"max_q"`

	// fixed, when set, replaces the enumeration with a single order.
	fixed *Order
}

// DefaultGrid is d ∈ {0,1}, p,q ∈ 0..3: 32 candidates.
func DefaultGrid() Grid {
	return Grid{D: []int{0, 1}, MaxP: 3, MaxQ: 3}
}

// SingleOrder is a grid holding exactly one order.
func SingleOrder(o Order) Grid {
	return Grid{D: []int{o.D}, MaxP: o.P, MaxQ: o.Q, fixed: &o}
}

// Orders enumerates the grid: d outermost, then (p, q) lexicographically.
// The position of an order in this slice is its tie-break rank.
func (g Grid) Orders() []Order {
	if g.fixed != nil {
		return []Order{*g.fixed}
	}
	orders := make([]Order, 0, len(g.D)*(g.MaxP+1)*(g.MaxQ+1))
	for _, d := range g.D {
		for p := 0; p <= g.MaxP; p++ {
			for q := 0; q <= g.MaxQ; q++ {
				orders = append(orders, Order{P: p, D: d, Q: q})
			}
		}
	}
	return orders
}

// Validate rejects empty grids and orders that can never be fitted.
func (g Grid) Validate() error {
	orders := g.Orders()
	if len(orders) == 0 {
		return fmt.Errorf("%w: empty grid", ErrInvalidOrder)
	}
	for _, o := range orders {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (g Grid) String() string {
	if g.fixed != nil {
		return g.fixed.String()
	}
	return fmt.Sprintf("d=%v p<=%d q<=%d", g.D, g.MaxP, g.MaxQ)
}

// Candidate reports the outcome of one order of a search.
type Candidate struct {
	Index    int
	Order    Order
	AICc     float64
	Err      error
	Duration time.Duration
}

// SearchResult is the winner of a search plus a summary of the run.
type SearchResult struct {
	Best     *FittedModel
	Order    Order
	AICc     float64
	Tried    int
	Failed   int
	Failures []*FitError
	Elapsed  time.Duration
}

type searchConfig struct {
	workers  int
	logger   *slog.Logger
	observer func(Candidate)
}

// SearchOption configures Search.
type SearchOption func(*searchConfig)

// WithWorkers bounds the number of concurrent fits. Values below 1 mean
// runtime.GOMAXPROCS(0).
func WithWorkers(n int) SearchOption {
	return func(c *searchConfig) { c.workers = n }
}

// WithLogger sets the logger used for per-candidate debug output.
func WithLogger(l *slog.Logger) SearchOption {
	return func(c *searchConfig) { c.logger = l }
}

// WithObserver registers a callback invoked once per candidate. It may be
// called from several goroutines at once.
func WithObserver(fn func(Candidate)) SearchOption {
	return func(c *searchConfig) { c.observer = fn }
}

// best is the running winner. Replacing it requires a strictly lower score,
// or an equal score from an order enumerated earlier, which yields the
// same winner as a sequential first-seen strict-less-than scan.
type best struct {
	mu    sync.Mutex
	model *FittedModel
	aicc  float64
	index int
}

func (b *best) offer(idx int, m *FittedModel, aicc float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model == nil || aicc < b.aicc || (aicc == b.aicc && idx < b.index) {
		b.model, b.aicc, b.index = m, aicc, idx
	}
}

// Search fits every order of grid on s and returns the one with the lowest
// AICc. Candidates that cannot be fitted are recorded and skipped; if none
// can be fitted the error is a *SearchError. A malformed series is rejected
// before any fit.
func Search(ctx context.Context, s *series.Series, grid Grid, opts ...SearchOption) (*SearchResult, error) {
	cfg := searchConfig{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.GOMAXPROCS(0)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	orders := grid.Orders()
	start := time.Now()

	var (
		winner   best
		failures = make([]*FitError, len(orders))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)
	for idx, order := range orders {
		g.Go(func() error {
			began := time.Now()
			m, err := fit(gctx, s, order)
			c := Candidate{Index: idx, Order: order, Err: err, Duration: time.Since(began)}

			if err != nil {
				var fe *FitError
				if !errors.As(err, &fe) {
					// cancellation or an invalid order aborts the whole search
					return err
				}
				failures[idx] = fe
				cfg.logger.Debug("candidate failed", "order", order.String(), "error", err)
			} else {
				c.AICc, _ = m.AICc()
				winner.offer(idx, m, c.AICc)
				cfg.logger.Debug("candidate fitted",
					"order", order.String(),
					"aicc", c.AICc,
					"loglik", m.LogLik,
					"evaluations", m.Evaluations,
					"duration_ms", c.Duration.Milliseconds(),
				)
			}

			if cfg.observer != nil {
				cfg.observer(c)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := slices.DeleteFunc(failures, func(f *FitError) bool { return f == nil })
	if winner.model == nil {
		return nil, &SearchError{Tried: len(orders), Failures: failed}
	}

	res := &SearchResult{
		Best:     winner.model,
		Order:    winner.model.Order,
		AICc:     winner.aicc,
		Tried:    len(orders),
		Failed:   len(failed),
		Failures: failed,
		Elapsed:  time.Since(start),
	}
	cfg.logger.Info("order search complete",
		"series", s.Name,
		"grid", grid.String(),
		"order", res.Order.String(),
		"aicc", res.AICc,
		"tried", res.Tried,
		"failed", res.Failed,
		"duration_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}
