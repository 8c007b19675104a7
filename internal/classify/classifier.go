// Package classify wraps the LLM that labels inbound emails with a business
// intent and synthesizes knowledge-grounded answers. Only the contract and
// the wire handling live here; prompt engineering stays deliberately thin.
package classify

import (
	"context"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
	"github.com/spec-kit/mail-helpdesk/internal/knowledge"
)

// Classifier labels one parsed message given the recent conversation.
type Classifier interface {
	Classify(ctx context.Context, msg domain.ParsedMessage, recent []domain.Turn) (domain.Classification, error)
}

// Responder produces a grounded reply for the general-query handler.
type Responder interface {
	Respond(ctx context.Context, question string, docs []knowledge.Document, recent []domain.Turn) (string, error)
}
