package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/mail-helpdesk/internal/api/dto"
	"github.com/spec-kit/mail-helpdesk/internal/domain"
	"github.com/spec-kit/mail-helpdesk/internal/queue"
)

// WebhookHandler accepts push notifications and hands the raw payload to the
// work queue. The HTTP response only acknowledges receipt: processing happens
// asynchronously on the event's lane.
type WebhookHandler struct {
	coordinator *queue.Coordinator
	logger      *zap.Logger
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(coordinator *queue.Coordinator, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{coordinator: coordinator, logger: logger}
}

// GmailPush POST /webhooks/gmail. The provider redelivers on non-2xx, so a
// full queue answers 503 and the notification comes back later.
func (h *WebhookHandler) GmailPush(c *fiber.Ctx) error {
	var payload dto.GmailPushPayload
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid push envelope")
	}
	if payload.Message.MessageID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "push envelope missing messageId")
	}

	raw, err := base64.StdEncoding.DecodeString(payload.Message.Data)
	if err != nil {
		// Some providers use URL-safe encoding for the data field.
		raw, err = base64.URLEncoding.DecodeString(payload.Message.Data)
	}
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "message data is not valid base64")
	}

	return h.submit(c, domain.IngestionEvent{
		SourceID:   payload.Message.MessageID,
		RawPayload: raw,
		ReceivedAt: time.Now().UTC(),
	})
}

// ManualTrigger POST /webhooks/manual-trigger. Accepts the raw email JSON
// directly; used for replaying error queue entries and local testing.
func (h *WebhookHandler) ManualTrigger(c *fiber.Ctx) error {
	body := c.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "empty payload")
	}

	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &probe)
	sourceID := probe.ID
	if sourceID == "" {
		sourceID = "manual-" + uuid.NewString()
	}

	return h.submit(c, domain.IngestionEvent{
		SourceID:   sourceID,
		RawPayload: append([]byte(nil), body...),
		ReceivedAt: time.Now().UTC(),
	})
}

func (h *WebhookHandler) submit(c *fiber.Ctx, ev domain.IngestionEvent) error {
	if err := h.coordinator.Submit(ev); err != nil {
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrStopped) {
			h.logger.Warn("submission rejected",
				zap.String("source_id", ev.SourceID),
				zap.Error(err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "ingestion backlogged, retry later")
		}
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.AcceptedResponse{
		Status:   "accepted",
		SourceID: ev.SourceID,
	})
}
