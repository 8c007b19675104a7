package dispatch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
)

const maxStatementMonths = 12

// BankStatementHandler answers statement requests. The statement document
// itself is rendered by the report collaborator; the handler emits the
// attachment pointer the draft will carry.
type BankStatementHandler struct{}

// NewBankStatementHandler builds the handler.
func NewBankStatementHandler() *BankStatementHandler {
	return &BankStatementHandler{}
}

func (h *BankStatementHandler) Name() string { return "bank_statement" }

func (h *BankStatementHandler) Handle(_ context.Context, _ *domain.Ticket, msg domain.ParsedMessage, cls domain.Classification, _ []domain.Turn) (Outcome, error) {
	months := 1
	if raw, ok := cls.Entities["months"]; ok {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			months = parsed
		}
	}
	if months > maxStatementMonths {
		months = maxStatementMonths
	}

	noun := "month"
	if months > 1 {
		noun = "months"
	}
	body := fmt.Sprintf(
		"Hello,\n\nAs requested, please find attached your bank statement covering the last %d %s. "+
			"If you need a different period, just reply to this email.\n\nKind regards,\nSupport",
		months, noun)

	return Outcome{
		Handler:     h.Name(),
		ReplyBody:   body,
		Attachments: []string{fmt.Sprintf("statement-%dmo.pdf", months)},
	}, nil
}
