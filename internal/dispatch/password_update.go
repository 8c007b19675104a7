package dispatch

import (
	"context"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
)

const passwordUpdateBody = "Hello,\n\n" +
	"We received your request to change your password. For your security we never " +
	"process credentials sent by email; a reset link has been sent to your " +
	"registered address and is valid for 30 minutes.\n\n" +
	"If you did not request this change, please contact us immediately.\n\n" +
	"Kind regards,\nSupport"

// PasswordUpdateHandler acknowledges password change requests. Credentials
// that appear in the email are never echoed back or stored.
type PasswordUpdateHandler struct{}

// NewPasswordUpdateHandler builds the handler.
func NewPasswordUpdateHandler() *PasswordUpdateHandler {
	return &PasswordUpdateHandler{}
}

func (h *PasswordUpdateHandler) Name() string { return "password_update" }

func (h *PasswordUpdateHandler) Handle(_ context.Context, _ *domain.Ticket, _ domain.ParsedMessage, _ domain.Classification, _ []domain.Turn) (Outcome, error) {
	return Outcome{Handler: h.Name(), ReplyBody: passwordUpdateBody}, nil
}
