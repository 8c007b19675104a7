package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process implementation, used in tests and when the
// service runs without Redis. Admission is a compare-and-set under one
// mutex, which makes Begin linearizable per source identifier.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]*memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	record
	expiresAt time.Time
}

// NewMemoryStore builds an empty store with the given expiry horizon.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{
		ttl:     ttl,
		records: make(map[string]*memoryRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) Begin(_ context.Context, sourceID, payloadHash string) (Admission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[sourceID]; ok && !s.expired(rec) {
		if rec.State == StatePending {
			return Admission{Decision: AlreadyInFlight}, nil
		}
		return Admission{Decision: AlreadyCompleted, Outcome: rec.Outcome}, nil
	}

	s.records[sourceID] = &memoryRecord{
		record: record{State: StatePending, PayloadHash: payloadHash, CreatedAt: s.now().UTC()},
	}
	return Admission{Decision: Admitted}, nil
}

func (s *MemoryStore) Complete(_ context.Context, sourceID string, outcome Outcome) error {
	return s.finish(sourceID, StateCompleted, outcome)
}

func (s *MemoryStore) Fail(_ context.Context, sourceID string, outcome Outcome) error {
	return s.finish(sourceID, StateFailed, outcome)
}

func (s *MemoryStore) finish(sourceID string, state State, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sourceID]
	if !ok {
		rec = &memoryRecord{}
		s.records[sourceID] = rec
	}
	rec.State = state
	rec.Outcome = &outcome
	rec.expiresAt = s.now().Add(s.ttl)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[sourceID]; ok && rec.State == StatePending {
		delete(s.records, sourceID)
	}
	return nil
}

// Expire removes terminal records past the expiry horizon. Pending records
// are never expired here; only Release returns them to a retryable state.
func (s *MemoryStore) Expire(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.records {
		if rec.State == StatePending {
			continue
		}
		if !rec.expiresAt.IsZero() && rec.expiresAt.Before(before) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) expired(rec *memoryRecord) bool {
	return rec.State != StatePending && !rec.expiresAt.IsZero() && rec.expiresAt.Before(s.now())
}
