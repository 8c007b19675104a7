package observability

import (
	"strconv"
	"sync"
	"time"
)

// PipelineResult labels how one ingestion event ended.
type PipelineResult string

const (
	ResultCompleted  PipelineResult = "completed"
	ResultDuplicate  PipelineResult = "duplicate"
	ResultEscalated  PipelineResult = "escalated"
	ResultErrorQueue PipelineResult = "error_queued"
	ResultReleased   PipelineResult = "released"
)

// Metrics provides basic in-memory counters for requests and pipeline
// outcomes.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	pipeline     map[PipelineResult]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		pipeline:     make(map[PipelineResult]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordPipeline counts one finished ingestion event.
func (m *Metrics) RecordPipeline(result PipelineResult) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipeline[result]++
}

// PipelineCount reads one pipeline counter; used by tests and the ready
// endpoint.
func (m *Metrics) PipelineCount(result PipelineResult) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pipeline[result]
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
