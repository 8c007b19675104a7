// Package queue accepts raw ingestion events and fans them out to a bounded
// pool of worker lanes. Events sharing a lane key (the ticket reference, or
// the source id when there is none) land on the same lane and are processed
// strictly in submission order; unrelated events run in parallel across
// lanes. This is the partitioned alternative to a global lock: per-ticket
// single-writer ordering without serializing the whole pipeline.
package queue

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
)

// Processor handles one admitted event. It owns its error routing (error
// queue, idempotency release); the coordinator only logs what it returns.
type Processor interface {
	Process(ctx context.Context, ev domain.IngestionEvent) error
}

// KeyFunc derives the serialization key for an event.
type KeyFunc func(domain.IngestionEvent) string

// Config sizes the coordinator.
type Config struct {
	WorkerPoolSize int
	LaneCapacity   int
	// ProcessingCeiling caps one event's total processing time. A worker
	// exceeding it is cancelled; the processor releases the idempotency
	// record so the event can be retried.
	ProcessingCeiling time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 8
	}
	if c.LaneCapacity <= 0 {
		c.LaneCapacity = 64
	}
	if c.ProcessingCeiling <= 0 {
		c.ProcessingCeiling = 2 * time.Minute
	}
	return c
}

// ErrQueueFull is returned when the target lane's buffer is exhausted. The
// ingestion source will redeliver.
var ErrQueueFull = errors.New("work queue full")

// ErrStopped is returned for submissions after shutdown began.
var ErrStopped = errors.New("work queue stopped")

// Coordinator is the work queue.
type Coordinator struct {
	cfg    Config
	proc   Processor
	keyFn  KeyFunc
	logger *zap.Logger

	lanes []chan domain.IngestionEvent
	group *errgroup.Group

	mu      sync.RWMutex
	stopped bool
}

// NewCoordinator builds the coordinator; Start must be called before Submit.
func NewCoordinator(cfg Config, proc Processor, keyFn KeyFunc, logger *zap.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	lanes := make([]chan domain.IngestionEvent, cfg.WorkerPoolSize)
	for i := range lanes {
		lanes[i] = make(chan domain.IngestionEvent, cfg.LaneCapacity)
	}
	return &Coordinator{
		cfg:    cfg,
		proc:   proc,
		keyFn:  keyFn,
		logger: logger,
		lanes:  lanes,
	}
}

// Start spawns one goroutine per lane.
func (c *Coordinator) Start(ctx context.Context) {
	c.group, ctx = errgroup.WithContext(ctx)
	for i, lane := range c.lanes {
		laneID, events := i, lane
		c.group.Go(func() error {
			c.runLane(ctx, laneID, events)
			return nil
		})
	}
}

// Submit accepts an event immediately or rejects it when the lane buffer is
// full. It never blocks the caller.
func (c *Coordinator) Submit(ev domain.IngestionEvent) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return ErrStopped
	}

	lane := c.lanes[laneIndex(c.keyFn(ev), len(c.lanes))]
	select {
	case lane <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting work, drains the lanes, and waits for the
// workers to exit.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	for _, lane := range c.lanes {
		close(lane)
	}
	c.mu.Unlock()

	if c.group != nil {
		_ = c.group.Wait()
	}
}

func (c *Coordinator) runLane(ctx context.Context, laneID int, events <-chan domain.IngestionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.runOne(ctx, laneID, ev)
		}
	}
}

// runOne executes a single event under the processing ceiling. A panic or
// failure affects only this event: the lane keeps consuming.
func (c *Coordinator) runOne(ctx context.Context, laneID int, ev domain.IngestionEvent) {
	jobCtx, cancel := context.WithTimeout(ctx, c.cfg.ProcessingCeiling)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("worker panic",
				zap.Int("lane", laneID),
				zap.String("source_id", ev.SourceID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	if err := c.proc.Process(jobCtx, ev); err != nil {
		c.logger.Warn("event processing failed",
			zap.Int("lane", laneID),
			zap.String("source_id", ev.SourceID),
			zap.Error(err))
	}
}

func laneIndex(key string, lanes int) int {
	h := fnv.New32a()
	_, _ = fmt.Fprint(h, key)
	return int(h.Sum32() % uint32(lanes))
}
