package executor

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/internal/query"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

var (
	queryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_query_total",
			Help: "Total number of query executions by outcome",
		},
		[]string{"rule_type", "status"}, // "success", "timeout", "error"
	)

	queryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_query_latency_seconds",
			Help:    "Query latency against the market data store",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"rule_type"},
	)

	queryRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_query_retries_total",
			Help: "Total number of transient-error retries",
		},
	)

	poolExhaustions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_pool_exhaustion_total",
			Help: "Executions rejected because no pool slot freed in time",
		},
	)

	breakerGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)
)

// Config holds executor tuning. Pool sizing is fixed at construction;
// callers never resize a running executor.
type Config struct {
	MaxConcurrent    int           // bound on in-flight queries
	AcquireTimeout   time.Duration // max wait for a pool slot
	QueryTimeout     time.Duration // default per-query budget
	MaxRetries       int           // attempts on transient errors
	RetryDelay       time.Duration // base backoff delay
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:    10,
		AcquireTimeout:   2 * time.Second,
		QueryTimeout:     5 * time.Second,
		MaxRetries:       3,
		RetryDelay:       100 * time.Millisecond,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// Executor runs query plans against the market-data source with a
// bounded concurrency gate, per-query timeout, classified-transient
// retry and a circuit breaker. It knows nothing about rule semantics;
// metrics about rule outcomes belong to the performance monitor.
type Executor struct {
	config  Config
	source  Source
	slots   chan struct{}
	breaker *circuitBreaker
}

// NewExecutor creates an executor over the given source
func NewExecutor(config Config, source Source) (*Executor, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 5 * time.Second
	}

	return &Executor{
		config:  config,
		source:  source,
		slots:   make(chan struct{}, config.MaxConcurrent),
		breaker: newCircuitBreaker(config.BreakerThreshold, config.BreakerCooldown),
	}, nil
}

// Execute runs a plan and returns its raw rows. Zero timeout falls
// back to the configured default. Timeouts and pool exhaustion surface
// immediately; only classified-transient failures are retried, with
// bounded exponential backoff.
func (e *Executor) Execute(ctx context.Context, plan *query.Plan, timeout time.Duration) ([]models.RawRow, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan cannot be nil")
	}
	// Defense in depth: builders never emit mutating statements, but an
	// engine on a read-only store refuses them regardless.
	if plan.Mutating() {
		return nil, models.ErrMutatingPlan
	}
	if !e.breaker.Allow() {
		breakerGauge.Set(float64(e.breaker.State()))
		return nil, models.ErrCircuitOpen
	}
	if timeout <= 0 {
		timeout = e.config.QueryTimeout
	}

	if err := e.acquire(ctx); err != nil {
		// The slot never freed, so the source was never consulted; a
		// granted probe must be handed back or the breaker wedges open.
		e.breaker.ReleaseProbe()
		return nil, err
	}
	defer e.release()

	start := time.Now()
	rows, err := e.runWithRetry(ctx, plan, timeout)
	queryLatency.WithLabelValues(string(plan.RuleType)).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		e.breaker.RecordSuccess()
		queryTotal.WithLabelValues(string(plan.RuleType), "success").Inc()
	case errors.Is(err, models.ErrTimeout):
		e.breaker.RecordFailure()
		queryTotal.WithLabelValues(string(plan.RuleType), "timeout").Inc()
	default:
		e.breaker.RecordFailure()
		queryTotal.WithLabelValues(string(plan.RuleType), "error").Inc()
	}
	breakerGauge.Set(float64(e.breaker.State()))

	return rows, err
}

// acquire takes a concurrency slot, waiting up to AcquireTimeout.
// The pool never grows past its bound; exhaustion is surfaced as a
// resource error rather than unbounded queuing.
func (e *Executor) acquire(ctx context.Context) error {
	wait := e.config.AcquireTimeout
	if wait <= 0 {
		wait = 2 * time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case e.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return &models.ExecutionError{Op: "acquire", Err: ctx.Err()}
	case <-timer.C:
		poolExhaustions.Inc()
		return models.ErrPoolExhausted
	}
}

func (e *Executor) release() {
	<-e.slots
}

func (e *Executor) runWithRetry(ctx context.Context, plan *query.Plan, timeout time.Duration) ([]models.RawRow, error) {
	var lastErr error

	for attempt := 0; attempt < e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.config.RetryDelay * time.Duration(1<<uint(attempt-1)) // exponential backoff
			queryRetries.Inc()
			logger.Warn("retrying query after transient error",
				logger.ErrorField(lastErr),
				logger.String("rule_id", plan.RuleID),
				logger.Int("attempt", attempt+1),
				logger.Duration("delay", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &models.ExecutionError{Op: "backoff", Err: ctx.Err()}
			}
		}

		queryCtx, cancel := context.WithTimeout(ctx, timeout)
		rows, err := e.source.Query(queryCtx, plan.SQL, plan.Args...)
		cancel()

		if err == nil {
			return rows, nil
		}

		if errors.Is(err, context.DeadlineExceeded) {
			// Budget spent; the caller gets a timeout, not a partial set.
			return nil, fmt.Errorf("%w after %s", models.ErrTimeout, timeout)
		}
		if errors.Is(err, context.Canceled) {
			return nil, &models.ExecutionError{Op: "query", Err: err}
		}
		if !isTransient(err) {
			return nil, &models.ExecutionError{Op: "query", Err: err}
		}
		lastErr = err
	}

	return nil, &models.ExecutionError{
		Op:        "query",
		Transient: true,
		Err:       fmt.Errorf("retries exhausted after %d attempts: %w", e.config.MaxRetries, lastErr),
	}
}

// isTransient classifies errors worth retrying. Validation, syntax and
// constraint errors from the store are permanent and fail immediately.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"i/o timeout",
		"unexpected eof",
		"bad connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
