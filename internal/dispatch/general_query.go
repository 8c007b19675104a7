package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/mail-helpdesk/internal/classify"
	"github.com/spec-kit/mail-helpdesk/internal/domain"
	"github.com/spec-kit/mail-helpdesk/internal/knowledge"
	"github.com/spec-kit/mail-helpdesk/internal/resilience"
)

const defaultSearchLimit = 5

// GeneralQueryHandler answers product and service questions by grounding
// the responder on knowledge base hits.
type GeneralQueryHandler struct {
	store      knowledge.Store
	storeInv   *resilience.Invoker
	responder  classify.Responder
	respondInv *resilience.Invoker
	limit      int
}

// NewGeneralQueryHandler builds the handler with the invokers guarding its
// two external dependencies.
func NewGeneralQueryHandler(store knowledge.Store, storeInv *resilience.Invoker, responder classify.Responder, respondInv *resilience.Invoker) *GeneralQueryHandler {
	return &GeneralQueryHandler{
		store:      store,
		storeInv:   storeInv,
		responder:  responder,
		respondInv: respondInv,
		limit:      defaultSearchLimit,
	}
}

func (h *GeneralQueryHandler) Name() string { return "general_query" }

func (h *GeneralQueryHandler) Handle(ctx context.Context, _ *domain.Ticket, msg domain.ParsedMessage, cls domain.Classification, recent []domain.Turn) (Outcome, error) {
	question := strings.TrimSpace(cls.Entities["specific_question"])
	if question == "" {
		question = strings.TrimSpace(msg.Body)
	}

	docs, err := resilience.Invoke(ctx, h.storeInv, func(ctx context.Context) ([]knowledge.Document, error) {
		return h.store.Search(ctx, question, h.limit)
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("knowledge search: %w", err)
	}

	answer, err := resilience.Invoke(ctx, h.respondInv, func(ctx context.Context) (string, error) {
		return h.responder.Respond(ctx, question, docs, recent)
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("answer synthesis: %w", err)
	}

	return Outcome{Handler: h.Name(), ReplyBody: answer}, nil
}
