package drafts

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogCreator is the dry-run creator used when no draft endpoint is
// configured: replies land in the log instead of a mailbox.
type LogCreator struct {
	logger *zap.Logger
}

// NewLogCreator builds the dry-run creator.
func NewLogCreator(logger *zap.Logger) *LogCreator {
	return &LogCreator{logger: logger}
}

func (c *LogCreator) CreateDraft(_ context.Context, req Request) (string, error) {
	id := "dry-" + uuid.NewString()
	c.logger.Info("draft (dry run)",
		zap.String("draft_id", id),
		zap.String("ticket_id", req.TicketID),
		zap.String("to", req.To),
		zap.String("subject", req.Subject),
		zap.Int("attachments", len(req.Attachments)))
	return id, nil
}
