// common/backoff/backoff.go
package backoff

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/YaganovValera/dataset-api/common/logger"
)

// -----------------------------------------------------------------------------
// Metrics & service label
// -----------------------------------------------------------------------------

var (
	serviceLabel = "unknown"

	metrics = struct {
		Retries   *prometheus.CounterVec
		Failures  *prometheus.CounterVec
		Successes *prometheus.CounterVec
		Delays    *prometheus.HistogramVec
	}{
		Retries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "common", Subsystem: "backoff", Name: "retries_total",
				Help: "Number of back-off retry attempts",
			},
			[]string{"service", "operation"},
		),
		Failures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "common", Subsystem: "backoff", Name: "failures_total",
				Help: "Number of operations that gave up after retries",
			},
			[]string{"service", "operation"},
		),
		Successes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "common", Subsystem: "backoff", Name: "successes_total",
				Help: "Number of operations that eventually succeeded",
			},
			[]string{"service", "operation"},
		),
		Delays: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "common", Subsystem: "backoff", Name: "retry_delay_seconds",
				Help:    "Histogram of retry delays (seconds)",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),
	}
)

// SetServiceLabel must be called once from common.InitServiceName(..)
// before the first Execute(..).  See common/service.go.
func SetServiceLabel(name string) { serviceLabel = name }

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config contains tunables for exponential back-off.
//
// All zero values are treated as “use reasonable default”.
type Config struct {
	// InitialInterval is the first delay before retrying.
	InitialInterval time.Duration `mapstructure:"initial_interval"`

	// RandomizationFactor adds ±jitter to each delay.
	// Accepted range: 0.0 ≤ f ≤ 1.0
	RandomizationFactor float64 `mapstructure:"randomization_factor"`

	// Multiplier multiplies the previous delay to get the next one.
	Multiplier float64 `mapstructure:"multiplier"`

	// MaxInterval caps each individual delay.
	MaxInterval time.Duration `mapstructure:"max_interval"`

	// MaxElapsedTime is the total time allowed for all retries
	// before giving up.  Zero → unlimited.
	MaxElapsedTime time.Duration `mapstructure:"max_elapsed_time"`

	// PerAttemptTimeout limits the execution time of every single
	// user function call.  Zero → no per-attempt timeout.
	PerAttemptTimeout time.Duration `mapstructure:"per_attempt_timeout"`
}

// applyDefaults fills cfg with safe defaults in-place.
func (c *Config) applyDefaults() {
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.RandomizationFactor <= 0 {
		c.RandomizationFactor = 0.5
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
}

// Validate performs cheap sanity checks on the user-supplied values.
func (c Config) Validate() error {
	if c.RandomizationFactor < 0 || c.RandomizationFactor > 1 {
		return fmt.Errorf("backoff: RandomizationFactor must be in [0,1]")
	}
	if c.Multiplier != 0 && c.Multiplier < 1 {
		return fmt.Errorf("backoff: Multiplier must be ≥ 1")
	}
	if c.MaxElapsedTime < 0 || c.PerAttemptTimeout < 0 {
		return fmt.Errorf("backoff: durations must not be negative")
	}
	return nil
}

// RetryableFunc is a unit of work that may be re-executed until it
// succeeds or the back-off strategy gives up.
type RetryableFunc func(ctx context.Context) error

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// ErrMaxRetries is returned from Execute(..) when the function was still
// failing after all retries were exhausted (or failed permanently).
type ErrMaxRetries struct {
	Op       string // operation label
	Err      error  // last error returned by fn
	Attempts int    // number of attempts performed
}

func (e *ErrMaxRetries) Error() string {
	return fmt.Sprintf("backoff: %s: %d attempt(s) failed: %v", e.Op, e.Attempts, e.Err)
}
func (e *ErrMaxRetries) Unwrap() error { return e.Err }

// Permanent marks an error as non-retryable.
func Permanent(err error) error { return backoff.Permanent(err) }

// -----------------------------------------------------------------------------
// Core
// -----------------------------------------------------------------------------

// Execute runs fn() with an exponential back-off defined by cfg, emitting
// Prometheus metrics and structured logs labelled with op.
func Execute(ctx context.Context, cfg Config, log *logger.Logger, op string, fn RetryableFunc) error {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("backoff: invalid config: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.RandomizationFactor = cfg.RandomizationFactor
	bo.Multiplier = cfg.Multiplier
	bo.MaxInterval = cfg.MaxInterval
	bo.MaxElapsedTime = cfg.MaxElapsedTime // 0 → без ограничения
	bo.Reset()
	boCtx := backoff.WithContext(bo, ctx)

	attempts := 0
	operation := func() error {
		attempts++
		if cfg.PerAttemptTimeout > 0 {
			atCtx, cancel := context.WithTimeout(ctx, cfg.PerAttemptTimeout)
			defer cancel()
			return fn(atCtx)
		}
		return fn(ctx)
	}
	notify := func(err error, delay time.Duration) {
		metrics.Retries.WithLabelValues(serviceLabel, op).Inc()
		metrics.Delays.WithLabelValues(serviceLabel, op).Observe(delay.Seconds())
		log.WithContext(ctx).Warn("back-off retry",
			zap.String("operation", op),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, boCtx, notify); err != nil {
		metrics.Failures.WithLabelValues(serviceLabel, op).Inc()
		log.WithContext(ctx).Error("back-off give-up",
			zap.String("operation", op),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return &ErrMaxRetries{Op: op, Err: err, Attempts: attempts}
	}

	metrics.Successes.WithLabelValues(serviceLabel, op).Inc()
	return nil
}
