// Package quota tracks cumulative query-engine cost against a fixed
// budget. The secondary GDELT source bills by bytes processed, so every
// query is gated twice: a pre-flight check against the estimated cost and
// a post-hoc check against the actual cost. Both are explicit failure
// points, not best-effort.
package quota

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for budget tracking.
var (
	budgetUsedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gdelt_query_budget_used_bytes",
		Help: "Cumulative bytes billed against the query-engine budget",
	})

	budgetRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gdelt_query_budget_rejections_total",
		Help: "Queries rejected by the budget tracker by phase",
	}, []string{"phase"}) // "reserve", "commit"
)

// BudgetError is returned when a query would exceed (reserve) or has
// exceeded (commit) the configured budget.
type BudgetError struct {
	Phase     string // "reserve" or "commit"
	Requested int64
	Used      int64
	Limit     int64
}

// Error implements the error interface.
func (e *BudgetError) Error() string {
	return fmt.Sprintf("query budget exceeded at %s: requested %d bytes with %d of %d already used",
		e.Phase, e.Requested, e.Used, e.Limit)
}

// Store persists cumulative usage. MemoryStore keeps it in-process;
// RedisStore shares it across processes.
type Store interface {
	Load(ctx context.Context) (int64, error)
	Save(ctx context.Context, used int64) error
}

// Tracker gates secondary-source queries against a byte budget. All
// mutation happens under a single exclusion lock; it is the only state in
// the acquisition layer shared by potentially concurrent calls.
type Tracker struct {
	mu     sync.Mutex
	limit  int64
	store  Store
	logger zerolog.Logger
}

// NewTracker creates a budget tracker. A nil store defaults to an
// in-process MemoryStore.
func NewTracker(limitBytes int64, store Store) (*Tracker, error) {
	if limitBytes <= 0 {
		return nil, fmt.Errorf("budget limit must be positive (got %d)", limitBytes)
	}
	if store == nil {
		store = NewMemoryStore()
	}

	return &Tracker{
		limit:  limitBytes,
		store:  store,
		logger: log.With().Str("component", "quota").Logger(),
	}, nil
}

// Reserve is the pre-flight check: it rejects a query whose estimated
// cost would exceed the remaining budget. Nothing is recorded; only
// Commit consumes budget.
func (t *Tracker) Reserve(ctx context.Context, estimated int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	used, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load budget usage: %w", err)
	}

	if used+estimated > t.limit {
		budgetRejectionsTotal.WithLabelValues("reserve").Inc()
		t.logger.Warn().
			Int64("estimated", estimated).
			Int64("used", used).
			Int64("limit", t.limit).
			Msg("Query rejected by pre-flight budget check")
		return &BudgetError{Phase: "reserve", Requested: estimated, Used: used, Limit: t.limit}
	}

	return nil
}

// Commit records the actual cost of a completed query. The usage is
// recorded even when it pushes the cumulative total over budget; the
// overage is then reported as a *BudgetError so the caller can stop.
func (t *Tracker) Commit(ctx context.Context, actual int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	used, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load budget usage: %w", err)
	}

	used += actual
	if err := t.store.Save(ctx, used); err != nil {
		return fmt.Errorf("save budget usage: %w", err)
	}
	budgetUsedBytes.Set(float64(used))

	if used > t.limit {
		budgetRejectionsTotal.WithLabelValues("commit").Inc()
		t.logger.Warn().
			Int64("actual", actual).
			Int64("used", used).
			Int64("limit", t.limit).
			Msg("Actual query cost pushed usage over budget")
		return &BudgetError{Phase: "commit", Requested: actual, Used: used, Limit: t.limit}
	}

	return nil
}

// Used returns the cumulative recorded cost.
func (t *Tracker) Used(ctx context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Load(ctx)
}

// Remaining returns the budget left. It can be negative after a
// post-hoc overage.
func (t *Tracker) Remaining(ctx context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	used, err := t.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	return t.limit - used, nil
}
