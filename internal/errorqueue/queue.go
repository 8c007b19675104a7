// Package errorqueue surfaces events the pipeline could not process, with
// enough context for manual inspection and replay. Nothing is ever silently
// dropped.
package errorqueue

import (
	"context"
	"time"
)

// Entry is one surfaced failure.
type Entry struct {
	Reason     string    `json:"reason"`
	SourceID   string    `json:"source_id"`
	Detail     string    `json:"detail,omitempty"`
	RawPayload []byte    `json:"raw_payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is the error queue contract.
type Queue interface {
	Enqueue(ctx context.Context, entry Entry) error
}
