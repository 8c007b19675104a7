package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "helpdesk:idem:"

// RedisStore keeps idempotency records in Redis. Admission relies on SET NX,
// which is atomic server-side, so Begin is linearizable per source
// identifier across all workers and processes.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore builds the store. ttl is the expiry horizon applied to
// terminal records; pending records carry no TTL so expiry can never
// resurrect in-flight work.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func (s *RedisStore) Begin(ctx context.Context, sourceID, payloadHash string) (Admission, error) {
	rec := record{State: StatePending, PayloadHash: payloadHash, CreatedAt: time.Now().UTC()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return Admission{}, err
	}

	// One re-read covers the race where a terminal record expires between
	// the failed SET NX and the GET.
	for i := 0; i < 2; i++ {
		ok, err := s.client.SetNX(ctx, key(sourceID), raw, 0).Result()
		if err != nil {
			return Admission{}, storeErr(err)
		}
		if ok {
			return Admission{Decision: Admitted}, nil
		}

		existing, err := s.client.Get(ctx, key(sourceID)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Admission{}, storeErr(err)
		}

		var prior record
		if err := json.Unmarshal(existing, &prior); err != nil {
			return Admission{}, fmt.Errorf("corrupt idempotency record for %s: %w", sourceID, err)
		}
		if prior.PayloadHash != "" && prior.PayloadHash != payloadHash {
			s.logger.Warn("redelivery with mutated payload",
				zap.String("source_id", sourceID))
		}
		if prior.State == StatePending {
			return Admission{Decision: AlreadyInFlight}, nil
		}
		return Admission{Decision: AlreadyCompleted, Outcome: prior.Outcome}, nil
	}
	return Admission{Decision: AlreadyInFlight}, nil
}

func (s *RedisStore) Complete(ctx context.Context, sourceID string, outcome Outcome) error {
	return s.finish(ctx, sourceID, StateCompleted, outcome)
}

func (s *RedisStore) Fail(ctx context.Context, sourceID string, outcome Outcome) error {
	return s.finish(ctx, sourceID, StateFailed, outcome)
}

func (s *RedisStore) finish(ctx context.Context, sourceID string, state State, outcome Outcome) error {
	rec := record{State: state, Outcome: &outcome, CreatedAt: time.Now().UTC()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	// The TTL starts the expiry horizon for the now-terminal record.
	if err := s.client.Set(ctx, key(sourceID), raw, s.ttl).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, sourceID string) error {
	existing, err := s.client.Get(ctx, key(sourceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return storeErr(err)
	}
	var rec record
	if err := json.Unmarshal(existing, &rec); err != nil {
		return err
	}
	if rec.State != StatePending {
		return nil
	}
	if err := s.client.Del(ctx, key(sourceID)).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func key(sourceID string) string {
	return keyPrefix + sourceID
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
