package tickets

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
)

// MemoryStore is the in-process implementation used in tests and when the
// service runs without Postgres.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]domain.Ticket)}
}

func (s *MemoryStore) Fetch(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := t
	return &copied, nil
}

func (s *MemoryStore) Create(_ context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	s.tickets[ticket.ID] = *ticket
	return nil
}

func (s *MemoryStore) UpdateIntent(_ context.Context, id string, intent domain.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return ErrNotFound
	}
	t.LastIntent = intent
	t.UpdatedAt = time.Now().UTC()
	s.tickets[id] = t
	return nil
}

func (s *MemoryStore) SetStatus(_ context.Context, id string, status domain.TicketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	if status != domain.TicketStatusOpen {
		now := time.Now().UTC()
		t.ClosedAt = &now
	} else {
		t.ClosedAt = nil
	}
	s.tickets[id] = t
	return nil
}

// Count reports how many tickets exist; used by tests asserting that
// continuation does not create tickets.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tickets)
}
