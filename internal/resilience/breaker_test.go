package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/mail-helpdesk/pkg/util"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker("ticket-backend", 3, time.Minute)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State())

	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	err := b.Allow()
	require.Error(t, err)
	assert.True(t, util.IsCircuitOpen(err))
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b := NewBreaker("classifier", 1, time.Minute)
	current := time.Now()
	b.now = func() time.Time { return current }

	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	// Cooldown not elapsed: fail fast.
	require.Error(t, b.Allow())

	current = current.Add(2 * time.Minute)

	// Exactly one probe allowed through.
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	err := b.Allow()
	require.Error(t, err)
	assert.True(t, util.IsCircuitOpen(err))
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	b := NewBreaker("drafts", 1, time.Minute)
	current := time.Now()
	b.now = func() time.Time { return current }

	require.NoError(t, b.Allow())
	b.RecordFailure()
	current = current.Add(2 * time.Minute)
	require.NoError(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b := NewBreaker("drafts", 1, time.Minute)
	current := time.Now()
	b.now = func() time.Time { return current }

	require.NoError(t, b.Allow())
	b.RecordFailure()
	current = current.Add(2 * time.Minute)
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	// Reopening restarts the cooldown clock.
	err := b.Allow()
	require.Error(t, err)
	assert.True(t, util.IsCircuitOpen(err))
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("knowledge", 2, time.Minute)

	require.NoError(t, b.Allow())
	b.RecordFailure()
	b.RecordSuccess()
	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
}
