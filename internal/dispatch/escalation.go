package dispatch

import (
	"context"
	"fmt"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
	"github.com/spec-kit/mail-helpdesk/internal/resilience"
)

const escalationAck = "Thank you for contacting us. Your request has been escalated to a human agent who will respond shortly."

// EscalationHandler is the fallback: it notifies the human team and
// acknowledges the customer. It backs urgent_human, fallback_human, and
// every message no other handler could serve.
type EscalationHandler struct {
	notifier Notifier
	invoker  *resilience.Invoker
	team     string
}

// NewEscalationHandler builds the handler.
func NewEscalationHandler(notifier Notifier, invoker *resilience.Invoker, team string) *EscalationHandler {
	if team == "" {
		team = "support"
	}
	return &EscalationHandler{notifier: notifier, invoker: invoker, team: team}
}

func (h *EscalationHandler) Name() string { return "escalation" }

func (h *EscalationHandler) Handle(ctx context.Context, ticket *domain.Ticket, msg domain.ParsedMessage, cls domain.Classification, _ []domain.Turn) (Outcome, error) {
	ticketRef := "unresolved"
	if ticket != nil {
		ticketRef = ticket.ID
	}
	summary := fmt.Sprintf("escalation for ticket %s: intent=%s confidence=%.2f sender=%s subject=%q",
		ticketRef, cls.Intent, cls.Confidence, msg.Sender, msg.Subject)

	if err := h.invoker.Do(ctx, func(ctx context.Context) error {
		return h.notifier.Notify(ctx, h.team, summary)
	}); err != nil {
		return Outcome{}, fmt.Errorf("notify %s: %w", h.team, err)
	}

	return Outcome{Handler: h.Name(), ReplyBody: escalationAck, Escalated: true}, nil
}
