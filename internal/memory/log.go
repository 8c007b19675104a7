// Package memory is the append-only conversation log. Turns for a ticket
// are written only by that ticket's lane, so readers observe them in exact
// append order; RecentContext returns committed turns without blocking on
// in-flight writes.
package memory

import (
	"context"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
)

// DefaultContextTurns bounds the classifier/handler context window when the
// caller does not specify one.
const DefaultContextTurns = 10

// Log is the conversation memory contract.
type Log interface {
	Append(ctx context.Context, turn *domain.Turn) error
	// RecentContext returns up to maxTurns committed turns for the ticket,
	// oldest first, most recent last. Re-reading does not consume.
	RecentContext(ctx context.Context, ticketID string, maxTurns int) ([]domain.Turn, error)
}
