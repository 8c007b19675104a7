// Package dispatch maps a classified intent to exactly one business handler
// and guarantees that a message never falls through: terminal handler
// failures degrade to the fallback handler's notify-and-acknowledge path.
package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
)

// Outcome is what a handler produced for one message.
type Outcome struct {
	Handler     string
	ReplyBody   string
	Attachments []string
	Escalated   bool
}

// Handler is one intent's business logic. External calls made inside a
// handler go through that dependency's resilience wrapper.
type Handler interface {
	Name() string
	Handle(ctx context.Context, ticket *domain.Ticket, msg domain.ParsedMessage, cls domain.Classification, recent []domain.Turn) (Outcome, error)
}

// Notifier reaches the human team. Implemented by the notification service.
type Notifier interface {
	Notify(ctx context.Context, team, message string) error
}

// Router holds the intent table.
type Router struct {
	handlers            map[domain.Intent]Handler
	fallback            Handler
	confidenceThreshold float64
	logger              *zap.Logger
}

// NewRouter builds a router around the mandatory fallback handler.
func NewRouter(fallback Handler, confidenceThreshold float64, logger *zap.Logger) *Router {
	return &Router{
		handlers:            make(map[domain.Intent]Handler),
		fallback:            fallback,
		confidenceThreshold: confidenceThreshold,
		logger:              logger,
	}
}

// Register binds exactly one handler to an intent label.
func (r *Router) Register(intent domain.Intent, handler Handler) {
	r.handlers[intent] = handler
}

// Dispatch routes one classified message. Unknown intents and
// sub-threshold confidence go to the fallback handler deterministically. A
// handler error (terminal after the resilience layer) also degrades to
// fallback; only a fallback failure propagates.
func (r *Router) Dispatch(ctx context.Context, ticket *domain.Ticket, msg domain.ParsedMessage, cls domain.Classification, recent []domain.Turn) (Outcome, error) {
	handler, ok := r.handlers[cls.Intent]
	if !ok || cls.Confidence < r.confidenceThreshold {
		r.logger.Info("routing to fallback",
			zap.String("intent", string(cls.Intent)),
			zap.Float64("confidence", cls.Confidence),
			zap.Bool("known_intent", ok))
		return r.fallback.Handle(ctx, ticket, msg, cls, recent)
	}

	outcome, err := handler.Handle(ctx, ticket, msg, cls, recent)
	if err == nil {
		return outcome, nil
	}

	r.logger.Warn("handler failed, degrading to fallback",
		zap.String("handler", handler.Name()),
		zap.String("intent", string(cls.Intent)),
		zap.Error(err))
	return r.fallback.Handle(ctx, ticket, msg, cls, recent)
}
