package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/mail-helpdesk/pkg/util"
)

func newTestInvoker(cfg Config) *Invoker {
	iv := NewInvoker("test-dep", cfg, zap.NewNop())
	iv.sleep = func(context.Context, time.Duration) error { return nil }
	return iv
}

func TestInvokerRetriesTransientThenSucceeds(t *testing.T) {
	iv := newTestInvoker(Config{MaxAttempts: 3})

	calls := 0
	err := iv.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return util.NewTransient("UPSTREAM_BUSY", "busy", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestInvokerPermanentBypassesRetry(t *testing.T) {
	iv := newTestInvoker(Config{MaxAttempts: 5})

	permanent := util.NewPermanent("BAD_REQUEST", "malformed request", nil)
	calls := 0
	err := iv.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestInvokerExhaustsAttempts(t *testing.T) {
	iv := newTestInvoker(Config{MaxAttempts: 3})

	calls := 0
	err := iv.Do(context.Background(), func(context.Context) error {
		calls++
		return util.NewTransient("UPSTREAM_BUSY", "busy", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, util.KindTransient, util.KindOf(err))
}

func TestInvokerFailsFastWhenCircuitOpen(t *testing.T) {
	iv := newTestInvoker(Config{MaxAttempts: 1, FailureThreshold: 2, Cooldown: time.Hour})

	boom := func(context.Context) error {
		return util.NewTransient("UPSTREAM_BUSY", "busy", nil)
	}
	require.Error(t, iv.Do(context.Background(), boom))
	require.Error(t, iv.Do(context.Background(), boom))

	calls := 0
	err := iv.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.True(t, util.IsCircuitOpen(err))
	assert.Equal(t, 0, calls, "open circuit must not attempt the operation")
}

func TestInvokerAttemptTimeoutIsTransient(t *testing.T) {
	iv := newTestInvoker(Config{MaxAttempts: 2, Timeout: 10 * time.Millisecond})

	calls := 0
	err := iv.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	require.NoError(t, err, "timeout on first attempt should be retried")
	assert.Equal(t, 2, calls)
}

func TestInvokerHonorsCallerCancellation(t *testing.T) {
	iv := newTestInvoker(Config{MaxAttempts: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	iv.sleep = sleepCtx

	err := iv.Do(ctx, func(context.Context) error {
		return util.NewTransient("UPSTREAM_BUSY", "busy", nil)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || util.IsTransient(err))
}

func TestInvokeReturnsValue(t *testing.T) {
	iv := newTestInvoker(Config{MaxAttempts: 2})

	got, err := Invoke(context.Background(), iv, func(context.Context) (string, error) {
		return "draft-42", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "draft-42", got)
}

func TestBackoffDelayCapped(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}.withDefaults()
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffDelay(cfg, attempt)
		assert.LessOrEqual(t, d, cfg.MaxDelay+cfg.BaseDelay)
		assert.GreaterOrEqual(t, d, cfg.BaseDelay)
	}
}
