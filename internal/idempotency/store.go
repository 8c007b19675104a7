// Package idempotency tracks which inbound source identifiers have already
// produced an effect, so at-least-once delivery collapses to exactly-once
// effective processing.
package idempotency

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/blake2b"
)

// State tracks the lifecycle of one source identifier.
type State string

const (
	StatePending   State = "PENDING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Outcome records how processing of a source identifier ended. It is stored
// on the terminal record and replayed verbatim to redeliveries.
type Outcome struct {
	Status   string `json:"status"`
	TicketID string `json:"ticket_id,omitempty"`
	DraftID  string `json:"draft_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Decision is the result of an admission attempt.
type Decision string

const (
	// Admitted means this caller won the race and must process the event.
	Admitted Decision = "ADMITTED"
	// AlreadyInFlight means another worker holds the pending record.
	AlreadyInFlight Decision = "ALREADY_IN_FLIGHT"
	// AlreadyCompleted means a terminal record exists; Outcome carries it.
	AlreadyCompleted Decision = "ALREADY_COMPLETED"
)

// Admission is returned by Begin.
type Admission struct {
	Decision Decision
	Outcome  *Outcome
}

// ErrStoreUnavailable signals that admission state could not be read or
// written. Callers must fail closed: processing without an admission could
// duplicate side effects.
var ErrStoreUnavailable = errors.New("idempotency store unavailable")

// Store is the idempotency contract. Begin is linearizable per source
// identifier: concurrent callers with the same sourceID receive exactly one
// Admitted. Terminal records expire after the configured horizon; pending
// records never expire on their own and are returned to a retryable state
// only through Release.
type Store interface {
	Begin(ctx context.Context, sourceID, payloadHash string) (Admission, error)
	Complete(ctx context.Context, sourceID string, outcome Outcome) error
	Fail(ctx context.Context, sourceID string, outcome Outcome) error
	// Release drops a pending record so a future redelivery or manual
	// replay can retry cleanly. Terminal records are left untouched.
	Release(ctx context.Context, sourceID string) error
}

type record struct {
	State       State     `json:"state"`
	PayloadHash string    `json:"payload_hash"`
	Outcome     *Outcome  `json:"outcome,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PayloadHash fingerprints a raw payload so redeliveries carrying mutated
// content under a reused source identifier are observable in the record.
func PayloadHash(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
