// Package resilience wraps every outbound call with bounded retry and a
// per-dependency circuit breaker. The retry schedule follows exponential
// backoff with jitter and only fires for errors classified transient;
// permanent errors propagate immediately.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/mail-helpdesk/pkg/util"
)

// Config carries the per-dependency resilience knobs.
type Config struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	// Timeout bounds each individual attempt. Zero disables the per-call
	// deadline.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	return c
}

// Invoker decorates calls to one external dependency. The breaker is owned
// here and shared by every caller holding the same Invoker.
type Invoker struct {
	dependency string
	cfg        Config
	breaker    *Breaker
	logger     *zap.Logger

	sleep func(context.Context, time.Duration) error
}

// NewInvoker builds the resilience wrapper for a named dependency.
func NewInvoker(dependency string, cfg Config, logger *zap.Logger) *Invoker {
	cfg = cfg.withDefaults()
	return &Invoker{
		dependency: dependency,
		cfg:        cfg,
		breaker:    NewBreaker(dependency, cfg.FailureThreshold, cfg.Cooldown),
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Breaker exposes the underlying breaker, mainly for health reporting.
func (iv *Invoker) Breaker() *Breaker {
	return iv.breaker
}

// Do runs op through the breaker and retry schedule. Each attempt carries
// the per-call deadline; exceeding it counts as a transient failure. An open
// circuit fails fast without attempting the operation.
func (iv *Invoker) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= iv.cfg.MaxAttempts; attempt++ {
		if err := iv.breaker.Allow(); err != nil {
			return err
		}

		lastErr = iv.attempt(ctx, op)
		if lastErr == nil {
			iv.breaker.RecordSuccess()
			return nil
		}

		if !util.IsTransient(lastErr) {
			// A permanent failure means the dependency answered; it bypasses
			// retry and counts as contact for breaker purposes.
			iv.breaker.RecordSuccess()
			return lastErr
		}

		iv.breaker.RecordFailure()
		iv.logger.Warn("dependency call failed",
			zap.String("dependency", iv.dependency),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt < iv.cfg.MaxAttempts {
			if err := iv.sleep(ctx, backoffDelay(iv.cfg, attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func (iv *Invoker) attempt(ctx context.Context, op func(context.Context) error) error {
	attemptCtx := ctx
	if iv.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, iv.cfg.Timeout)
		defer cancel()
	}

	err := op(attemptCtx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return util.NewTimeout(iv.dependency, err)
	}
	return err
}

// Invoke runs an operation returning a value through the wrapper.
func Invoke[T any](ctx context.Context, iv *Invoker, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := iv.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// backoffDelay computes delay = BaseDelay * 2^(attempt-1), capped at
// MaxDelay, plus jitter in [0, BaseDelay).
func backoffDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.BaseDelay << uint(attempt-1)
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(cfg.BaseDelay)))
	return delay + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
