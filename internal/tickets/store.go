// Package tickets defines the ticket backend contract and its
// implementations. The aggregate is owned by the resolution engine; callers
// mutate it only from inside the per-ticket lane.
package tickets

import (
	"context"
	"errors"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
)

// ErrNotFound is returned when no ticket matches the identifier. A stale
// reference token resolving here is not a failure; the engine treats it as
// the no-token case.
var ErrNotFound = errors.New("ticket not found")

// Store is the narrow contract with the ticketing backend.
type Store interface {
	Fetch(ctx context.Context, id string) (*domain.Ticket, error)
	Create(ctx context.Context, ticket *domain.Ticket) error
	// UpdateIntent records the latest classified intent and touches the
	// update timestamp.
	UpdateIntent(ctx context.Context, id string, intent domain.Intent) error
	// SetStatus transitions ticket lifecycle state (close, supersede,
	// reopen).
	SetStatus(ctx context.Context, id string, status domain.TicketStatus) error
}
