// Package resolution decides, for each classified message, whether the
// conversation continues an existing ticket or starts a new one.
package resolution

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
	"github.com/spec-kit/mail-helpdesk/internal/resilience"
	"github.com/spec-kit/mail-helpdesk/internal/tickets"
)

// Decision is the explicit outcome of the continuation state machine.
type Decision string

const (
	// DecisionReuse appends to the referenced ticket.
	DecisionReuse Decision = "REUSE"
	// DecisionFork opens a new ticket because the topic changed; the old
	// ticket is closed by supersession.
	DecisionFork Decision = "FORK"
	// DecisionCreateFresh opens a new ticket with no predecessor.
	DecisionCreateFresh Decision = "CREATE_FRESH"
)

// Resolution is the handle returned to the pipeline.
type Resolution struct {
	Ticket     *domain.Ticket
	Decision   Decision
	Superseded string
	Reopened   bool
}

// Config carries resolution policy.
type Config struct {
	// ReopenClosedTickets controls the tie-break when a reference token
	// matches an explicitly closed ticket with an unchanged intent: reopen
	// and continue it, or always fork.
	ReopenClosedTickets bool
}

// Engine owns ticket mutation. All calls to the ticket backend go through
// the resilience wrapper; the caller guarantees single-writer ordering per
// ticket via the lane the event was hashed to.
type Engine struct {
	store   tickets.Store
	invoker *resilience.Invoker
	cfg     Config
	logger  *zap.Logger
}

// NewEngine builds the resolution engine.
func NewEngine(store tickets.Store, invoker *resilience.Invoker, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{store: store, invoker: invoker, cfg: cfg, logger: logger}
}

// Resolve runs the continuation state machine for one message.
// Classification has already happened: the same-intent rule compares the new
// intent against the stored one.
func (e *Engine) Resolve(ctx context.Context, msg domain.ParsedMessage, cls domain.Classification) (Resolution, error) {
	var existing *domain.Ticket
	if msg.HasReference() {
		found, err := e.fetch(ctx, msg.ReferenceToken)
		if err != nil {
			return Resolution{}, fmt.Errorf("fetch referenced ticket %s: %w", msg.ReferenceToken, err)
		}
		existing = found
	}

	decision := decide(existing, cls.Intent, e.cfg)

	switch decision {
	case DecisionReuse:
		return e.reuse(ctx, existing, cls)
	case DecisionFork:
		return e.fork(ctx, existing, msg, cls)
	default:
		ticket, err := e.create(ctx, msg, cls)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Ticket: ticket, Decision: DecisionCreateFresh}, nil
	}
}

// decide is the pure continuation state machine, kept free of I/O so every
// branch is directly testable.
func decide(existing *domain.Ticket, intent domain.Intent, cfg Config) Decision {
	switch {
	case existing == nil:
		return DecisionCreateFresh
	case existing.LastIntent != intent:
		return DecisionFork
	case existing.Open():
		return DecisionReuse
	case cfg.ReopenClosedTickets:
		return DecisionReuse
	default:
		return DecisionFork
	}
}

func (e *Engine) fetch(ctx context.Context, token string) (*domain.Ticket, error) {
	var result *domain.Ticket
	err := e.invoker.Do(ctx, func(ctx context.Context) error {
		ticket, err := e.store.Fetch(ctx, token)
		if errors.Is(err, tickets.ErrNotFound) {
			// Stale or invalid token: fall through to the no-token path.
			result = nil
			return nil
		}
		if err != nil {
			return err
		}
		result = ticket
		return nil
	})
	return result, err
}

func (e *Engine) reuse(ctx context.Context, existing *domain.Ticket, cls domain.Classification) (Resolution, error) {
	reopened := false
	if !existing.Open() {
		if err := e.invoker.Do(ctx, func(ctx context.Context) error {
			return e.store.SetStatus(ctx, existing.ID, domain.TicketStatusOpen)
		}); err != nil {
			return Resolution{}, fmt.Errorf("reopen ticket %s: %w", existing.ID, err)
		}
		existing.Status = domain.TicketStatusOpen
		existing.ClosedAt = nil
		reopened = true
	}

	if err := e.invoker.Do(ctx, func(ctx context.Context) error {
		return e.store.UpdateIntent(ctx, existing.ID, cls.Intent)
	}); err != nil {
		return Resolution{}, fmt.Errorf("touch ticket %s: %w", existing.ID, err)
	}
	existing.LastIntent = cls.Intent

	return Resolution{Ticket: existing, Decision: DecisionReuse, Reopened: reopened}, nil
}

func (e *Engine) fork(ctx context.Context, old *domain.Ticket, msg domain.ParsedMessage, cls domain.Classification) (Resolution, error) {
	fresh, err := e.create(ctx, msg, cls)
	if err != nil {
		return Resolution{}, err
	}

	// The old ticket is closed by supersession and never mutated again for
	// this message. A ticket already closed keeps its status.
	if old.Open() {
		if err := e.invoker.Do(ctx, func(ctx context.Context) error {
			return e.store.SetStatus(ctx, old.ID, domain.TicketStatusSuperseded)
		}); err != nil {
			return Resolution{}, fmt.Errorf("supersede ticket %s: %w", old.ID, err)
		}
	}

	e.logger.Info("conversation forked",
		zap.String("old_ticket", old.ID),
		zap.String("new_ticket", fresh.ID),
		zap.String("old_intent", string(old.LastIntent)),
		zap.String("new_intent", string(cls.Intent)))

	return Resolution{Ticket: fresh, Decision: DecisionFork, Superseded: old.ID}, nil
}

func (e *Engine) create(ctx context.Context, msg domain.ParsedMessage, cls domain.Classification) (*domain.Ticket, error) {
	ticket := &domain.Ticket{
		ID:         uuid.NewString(),
		Requester:  msg.Sender,
		Subject:    msg.Subject,
		Status:     domain.TicketStatusOpen,
		LastIntent: cls.Intent,
	}
	if err := e.invoker.Do(ctx, func(ctx context.Context) error {
		return e.store.Create(ctx, ticket)
	}); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	return ticket, nil
}
