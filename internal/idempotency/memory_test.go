package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginAdmitsExactlyOnce(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	adm, err := store.Begin(ctx, "msg-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, Admitted, adm.Decision)

	adm, err = store.Begin(ctx, "msg-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, AlreadyInFlight, adm.Decision)
}

func TestBeginConcurrentSingleWinner(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	admitted := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adm, err := store.Begin(ctx, "msg-concurrent", "hash")
			assert.NoError(t, err)
			if adm.Decision == Admitted {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	assert.Equal(t, 1, count, "exactly one concurrent caller must be admitted")
}

func TestCompletedRedeliveryReturnsPriorOutcome(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	_, err := store.Begin(ctx, "msg-2", "hash")
	require.NoError(t, err)

	outcome := Outcome{Status: "completed", TicketID: "TCK-1", DraftID: "draft-9"}
	require.NoError(t, store.Complete(ctx, "msg-2", outcome))

	adm, err := store.Begin(ctx, "msg-2", "hash")
	require.NoError(t, err)
	assert.Equal(t, AlreadyCompleted, adm.Decision)
	require.NotNil(t, adm.Outcome)
	assert.Equal(t, "TCK-1", adm.Outcome.TicketID)
	assert.Equal(t, "draft-9", adm.Outcome.DraftID)
}

func TestFailedTerminalRedeliveryAbsorbed(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	_, err := store.Begin(ctx, "msg-3", "hash")
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, "msg-3", Outcome{Status: "failed", Detail: "malformed"}))

	adm, err := store.Begin(ctx, "msg-3", "hash")
	require.NoError(t, err)
	assert.Equal(t, AlreadyCompleted, adm.Decision)
	assert.Equal(t, "failed", adm.Outcome.Status)
}

func TestReleaseReturnsPendingToRetryable(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	_, err := store.Begin(ctx, "msg-4", "hash")
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "msg-4"))

	adm, err := store.Begin(ctx, "msg-4", "hash")
	require.NoError(t, err)
	assert.Equal(t, Admitted, adm.Decision, "released record must admit a retry")
}

func TestReleaseLeavesTerminalRecords(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	_, err := store.Begin(ctx, "msg-5", "hash")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "msg-5", Outcome{Status: "completed"}))
	require.NoError(t, store.Release(ctx, "msg-5"))

	adm, err := store.Begin(ctx, "msg-5", "hash")
	require.NoError(t, err)
	assert.Equal(t, AlreadyCompleted, adm.Decision)
}

func TestExpireRemovesOnlyTerminalRecords(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	_, err := store.Begin(ctx, "pending", "hash")
	require.NoError(t, err)
	_, err = store.Begin(ctx, "done", "hash")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "done", Outcome{Status: "completed"}))

	removed := store.Expire(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 1, removed)

	adm, err := store.Begin(ctx, "pending", "hash")
	require.NoError(t, err)
	assert.Equal(t, AlreadyInFlight, adm.Decision, "expiry must not resurrect in-flight work")

	adm, err = store.Begin(ctx, "done", "hash")
	require.NoError(t, err)
	assert.Equal(t, Admitted, adm.Decision, "expired terminal record admits fresh processing")
}

func TestTerminalRecordExpiresOnRead(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	_, err := store.Begin(ctx, "msg-6", "hash")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "msg-6", Outcome{Status: "completed"}))

	current = current.Add(2 * time.Minute)
	adm, err := store.Begin(ctx, "msg-6", "hash")
	require.NoError(t, err)
	assert.Equal(t, Admitted, adm.Decision)
}

func TestPayloadHashStable(t *testing.T) {
	a := PayloadHash([]byte(`{"id":"1"}`))
	b := PayloadHash([]byte(`{"id":"1"}`))
	c := PayloadHash([]byte(`{"id":"2"}`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
