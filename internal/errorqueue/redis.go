package errorqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const listKey = "helpdesk:errorqueue"

// RedisQueue pushes entries onto a Redis list for the operations tooling to
// drain.
type RedisQueue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisQueue builds the queue.
func NewRedisQueue(client *redis.Client, logger *zap.Logger) *RedisQueue {
	return &RedisQueue{client: client, logger: logger}
}

func (q *RedisQueue) Enqueue(ctx context.Context, entry Entry) error {
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, listKey, raw).Err(); err != nil {
		// Last resort: the entry must still be visible somewhere.
		q.logger.Error("error queue unavailable, dumping entry to log",
			zap.String("reason", entry.Reason),
			zap.String("source_id", entry.SourceID),
			zap.Error(err))
		return err
	}
	return nil
}
