package memory

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
)

// InMemoryLog is the in-process implementation used in tests and when the
// service runs without Postgres. A snapshot copy is returned to readers, so
// RecentContext never blocks behind a writer beyond the RWMutex handoff.
type InMemoryLog struct {
	mu    sync.RWMutex
	turns map[string][]domain.Turn
}

// NewInMemoryLog builds an empty log.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{turns: make(map[string][]domain.Turn)}
}

func (l *InMemoryLog) Append(_ context.Context, turn *domain.Turn) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	l.turns[turn.TicketID] = append(l.turns[turn.TicketID], *turn)
	return nil
}

func (l *InMemoryLog) RecentContext(_ context.Context, ticketID string, maxTurns int) ([]domain.Turn, error) {
	if maxTurns <= 0 {
		maxTurns = DefaultContextTurns
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.turns[ticketID]
	start := len(all) - maxTurns
	if start < 0 {
		start = 0
	}
	result := make([]domain.Turn, len(all)-start)
	copy(result, all[start:])
	return result, nil
}
