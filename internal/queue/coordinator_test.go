package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
)

type recordingProcessor struct {
	mu       sync.Mutex
	perKey   map[string][]string
	delay    time.Duration
	panicOn  string
	ceilings int
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{perKey: make(map[string][]string)}
}

func (p *recordingProcessor) Process(ctx context.Context, ev domain.IngestionEvent) error {
	if string(ev.RawPayload) == p.panicOn {
		panic("boom")
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			p.mu.Lock()
			p.ceilings++
			p.mu.Unlock()
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := string(ev.RawPayload)
	p.perKey[ev.SourceID] = append(p.perKey[ev.SourceID], key)
	return nil
}

func (p *recordingProcessor) processedFor(sourceID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.perKey[sourceID]...)
}

func sourceKey(ev domain.IngestionEvent) string { return ev.SourceID }

func TestCoordinatorProcessesSubmittedEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	proc := newRecordingProcessor()
	coord := NewCoordinator(Config{WorkerPoolSize: 4, LaneCapacity: 16}, proc, sourceKey, zap.NewNop())
	coord.Start(context.Background())

	for i := 0; i < 20; i++ {
		require.NoError(t, coord.Submit(domain.IngestionEvent{
			SourceID:   fmt.Sprintf("src-%d", i),
			RawPayload: []byte(fmt.Sprintf("payload-%d", i)),
		}))
	}
	coord.Shutdown()

	total := 0
	for i := 0; i < 20; i++ {
		total += len(proc.processedFor(fmt.Sprintf("src-%d", i)))
	}
	assert.Equal(t, 20, total)
}

func TestCoordinatorSerializesSameLaneKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	proc := newRecordingProcessor()
	coord := NewCoordinator(Config{WorkerPoolSize: 8, LaneCapacity: 64}, proc, sourceKey, zap.NewNop())
	coord.Start(context.Background())

	// All events share one source id, therefore one lane; submission order
	// must equal processing order.
	for i := 0; i < 50; i++ {
		require.NoError(t, coord.Submit(domain.IngestionEvent{
			SourceID:   "ticket-1",
			RawPayload: []byte(fmt.Sprintf("m-%03d", i)),
		}))
	}
	coord.Shutdown()

	got := proc.processedFor("ticket-1")
	require.Len(t, got, 50)
	for i, payload := range got {
		assert.Equal(t, fmt.Sprintf("m-%03d", i), payload, "lane must preserve submission order")
	}
}

func TestCoordinatorRejectsWhenLaneFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	proc := newRecordingProcessor()
	proc.delay = time.Hour
	coord := NewCoordinator(Config{WorkerPoolSize: 1, LaneCapacity: 1, ProcessingCeiling: time.Hour}, proc, sourceKey, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	coord.Start(ctx)

	// First submit may start processing, second fills the buffer; a third
	// must be rejected rather than block.
	require.NoError(t, coord.Submit(domain.IngestionEvent{SourceID: "a", RawPayload: []byte("1")}))
	require.NoError(t, coord.Submit(domain.IngestionEvent{SourceID: "a", RawPayload: []byte("2")}))
	err := coord.Submit(domain.IngestionEvent{SourceID: "a", RawPayload: []byte("3")})
	for err == nil {
		// The worker may have drained one slot before the buffer check;
		// keep pushing, the bounded lane must reject eventually.
		err = coord.Submit(domain.IngestionEvent{SourceID: "a", RawPayload: []byte("3")})
	}
	assert.ErrorIs(t, err, ErrQueueFull)

	cancel()
	coord.Shutdown()
}

func TestCoordinatorPanicDoesNotKillLane(t *testing.T) {
	defer goleak.VerifyNone(t)

	proc := newRecordingProcessor()
	proc.panicOn = "explode"
	coord := NewCoordinator(Config{WorkerPoolSize: 1, LaneCapacity: 8}, proc, sourceKey, zap.NewNop())
	coord.Start(context.Background())

	require.NoError(t, coord.Submit(domain.IngestionEvent{SourceID: "a", RawPayload: []byte("explode")}))
	require.NoError(t, coord.Submit(domain.IngestionEvent{SourceID: "a", RawPayload: []byte("after")}))
	coord.Shutdown()

	got := proc.processedFor("a")
	require.Len(t, got, 1, "event after the panic must still be processed")
	assert.Equal(t, "after", got[0])
}

func TestCoordinatorEnforcesProcessingCeiling(t *testing.T) {
	defer goleak.VerifyNone(t)

	proc := newRecordingProcessor()
	proc.delay = time.Second
	coord := NewCoordinator(Config{WorkerPoolSize: 1, LaneCapacity: 4, ProcessingCeiling: 20 * time.Millisecond}, proc, sourceKey, zap.NewNop())
	coord.Start(context.Background())

	require.NoError(t, coord.Submit(domain.IngestionEvent{SourceID: "slow", RawPayload: []byte("1")}))
	coord.Shutdown()

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, 1, proc.ceilings, "job must be cancelled at the ceiling")
}

func TestCoordinatorSubmitAfterShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	coord := NewCoordinator(Config{WorkerPoolSize: 1}, newRecordingProcessor(), sourceKey, zap.NewNop())
	coord.Start(context.Background())
	coord.Shutdown()

	err := coord.Submit(domain.IngestionEvent{SourceID: "late"})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestLaneIndexStable(t *testing.T) {
	a := laneIndex("ticket-42", 8)
	b := laneIndex("ticket-42", 8)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 8)
}
