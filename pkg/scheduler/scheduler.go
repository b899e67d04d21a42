// Package scheduler serializes outbound upstream calls behind a single
// worker with minimum inter-call spacing and retries throttled failures
// with exponential backoff and jitter.
//
// All upstream traffic in the process funnels through one Scheduler
// instance. Calls are serviced in submission order (FIFO). There is no
// mid-flight cancellation: a caller awaiting a call that retries
// internally simply waits longer.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for scheduler operations.
var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubcache_scheduler_calls_total",
		Help: "Total scheduled upstream calls by outcome",
	}, []string{"outcome"}) // "success", "terminal", "exhausted", "abandoned"

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hubcache_scheduler_retries_total",
		Help: "Total number of retry attempts for throttled calls",
	})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hubcache_scheduler_retry_backoff_seconds",
		Help:    "Backoff duration before retry attempts",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hubcache_scheduler_queue_depth",
		Help: "Number of calls queued behind the scheduler worker",
	})
)

// Errors returned by the scheduler.
var (
	// ErrRetryExhausted wraps the last throttling error once all retry
	// attempts are spent.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrShuttingDown is returned for calls abandoned by shutdown.
	ErrShuttingDown = errors.New("scheduler shutting down")

	// ErrContextCanceled is returned when the caller's context expires
	// during a retry backoff.
	ErrContextCanceled = errors.New("context canceled during backoff")
)

// StatusCoder is implemented by errors carrying an HTTP-like status code.
// The scheduler only inspects the code to classify throttling.
type StatusCoder interface {
	HTTPStatus() int
}

// IsThrottle reports whether err represents an upstream throttling
// outcome (HTTP 429 rate limit or 403 quota rejection).
func IsThrottle(err error) bool {
	var sc StatusCoder
	if !errors.As(err, &sc) {
		return false
	}
	status := sc.HTTPStatus()
	return status == 429 || status == 403
}

// Config holds the scheduler settings.
type Config struct {
	// MinInterval is the minimum spacing between call starts, enforced
	// regardless of how fast calls complete.
	MinInterval time.Duration

	// MaxRetries bounds retries of throttled calls. A call makes at most
	// MaxRetries+1 attempts.
	MaxRetries int

	// BaseDelay is the backoff before the first retry; it doubles per
	// attempt and carries symmetric jitter (factor 0.5 to 1.5).
	BaseDelay time.Duration

	// QueueSize is the submission queue capacity.
	QueueSize int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		MinInterval: time.Second,
		MaxRetries:  3,
		BaseDelay:   time.Second,
		QueueSize:   64,
	}
}

type job struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// Scheduler owns the single upstream call slot.
type Scheduler struct {
	cfg    Config
	logger zerolog.Logger

	jobs     chan *job
	done     chan struct{}
	draining atomic.Bool

	mu     sync.RWMutex
	closed bool

	// lastStart is touched only by the worker goroutine.
	lastStart time.Time
}

// New creates a scheduler and starts its worker.
func New(cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	s := &Scheduler{
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan *job, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go s.worker()
	return s
}

// Schedule submits fn and blocks until it completes, fails terminally, or
// exhausts its retries. Throttled failures (HTTP 429/403) are retried
// internally; the caller never sees intermediate failures.
func (s *Scheduler) Schedule(ctx context.Context, fn func(context.Context) error) error {
	j := &job{
		ctx:    ctx,
		fn:     fn,
		result: make(chan error, 1),
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrShuttingDown
	}
	queueDepth.Inc()
	s.jobs <- j
	s.mu.RUnlock()

	return <-j.result
}

// Shutdown stops accepting new calls, lets the in-flight call finish and
// abandons queued-but-not-started calls with ErrShuttingDown. It returns
// once the worker has drained or ctx expires.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.draining.Store(true)
	close(s.jobs)
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) worker() {
	defer close(s.done)

	for j := range s.jobs {
		queueDepth.Dec()
		if s.draining.Load() {
			callsTotal.WithLabelValues("abandoned").Inc()
			j.result <- ErrShuttingDown
			continue
		}
		s.run(j)
	}
}

func (s *Scheduler) run(j *job) {
	attempts := s.cfg.MaxRetries + 1
	delay := s.cfg.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		s.waitTurn()

		err := j.fn(j.ctx)
		if err == nil {
			if attempt > 1 {
				s.logger.Info().Int("attempt", attempt).Msg("Upstream call succeeded after retry")
			}
			callsTotal.WithLabelValues("success").Inc()
			j.result <- nil
			return
		}

		if !IsThrottle(err) {
			callsTotal.WithLabelValues("terminal").Inc()
			j.result <- err
			return
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		retriesTotal.Inc()
		backoff := jitter(delay)
		retryBackoffSeconds.Observe(backoff.Seconds())

		s.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Upstream throttled, retrying after backoff")

		select {
		case <-time.After(backoff):
		case <-j.ctx.Done():
			callsTotal.WithLabelValues("terminal").Inc()
			j.result <- fmt.Errorf("%w: %v", ErrContextCanceled, j.ctx.Err())
			return
		}

		delay *= 2
	}

	callsTotal.WithLabelValues("exhausted").Inc()
	s.logger.Warn().
		Err(lastErr).
		Int("attempts", attempts).
		Msg("Retry attempts exhausted")

	j.result <- fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}

// waitTurn enforces the minimum spacing between call starts.
func (s *Scheduler) waitTurn() {
	if s.cfg.MinInterval > 0 && !s.lastStart.IsZero() {
		if elapsed := time.Since(s.lastStart); elapsed < s.cfg.MinInterval {
			time.Sleep(s.cfg.MinInterval - elapsed)
		}
	}
	s.lastStart = time.Now()
}

// jitter spreads a backoff delay by a symmetric random factor in
// [0.5, 1.5) to avoid synchronized retry storms across instances.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.5 + rand.Float64()))
}
