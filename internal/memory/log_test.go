package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
)

func TestAppendPreservesOrder(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(ctx, &domain.Turn{
			ID:        fmt.Sprintf("turn-%d", i),
			TicketID:  "TCK-1",
			Direction: domain.TurnIncoming,
			Body:      fmt.Sprintf("message %d", i),
		}))
	}

	turns, err := log.RecentContext(ctx, "TCK-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 5)
	for i, turn := range turns {
		assert.Equal(t, fmt.Sprintf("turn-%d", i), turn.ID, "turns must read back in append order")
	}
}

func TestRecentContextBounded(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, log.Append(ctx, &domain.Turn{
			ID:       fmt.Sprintf("turn-%d", i),
			TicketID: "TCK-1",
		}))
	}

	turns, err := log.RecentContext(ctx, "TCK-1", 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "turn-5", turns[0].ID)
	assert.Equal(t, "turn-7", turns[2].ID, "most recent turn comes last")
}

func TestRecentContextRestartable(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, &domain.Turn{ID: "turn-0", TicketID: "TCK-1"}))

	first, err := log.RecentContext(ctx, "TCK-1", 5)
	require.NoError(t, err)
	second, err := log.RecentContext(ctx, "TCK-1", 5)
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-reading must not consume turns")
}

func TestRecentContextIsolatedPerTicket(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, &domain.Turn{ID: "a", TicketID: "TCK-1"}))
	require.NoError(t, log.Append(ctx, &domain.Turn{ID: "b", TicketID: "TCK-2"}))

	turns, err := log.RecentContext(ctx, "TCK-2", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "b", turns[0].ID)
}
