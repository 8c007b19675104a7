// Package service holds the escalation notification service: the bridge
// between pipeline events and the humans watching the helpdesk.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/mail-helpdesk/internal/config"
	"github.com/spec-kit/mail-helpdesk/internal/events"
	"github.com/spec-kit/mail-helpdesk/pkg/util"
)

// NotificationService delivers escalation notices to the support team's
// webhook and mirrors pipeline events into the log.
type NotificationService struct {
	cfg        config.Notification
	dispatcher events.Dispatcher
	client     *http.Client
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(cfg config.Notification, dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		cfg:        cfg,
		dispatcher: dispatcher,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Notify posts one escalation message to the team webhook. Without a
// configured webhook the notice lands in the log, so escalations stay
// visible in development setups.
func (n *NotificationService) Notify(ctx context.Context, team, message string) error {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		n.logger.Warn("no escalation webhook configured, logging instead",
			zap.String("team", team),
			zap.String("message", message))
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"team":    team,
		"message": message,
		"from":    n.cfg.EmailFrom,
	})
	if err != nil {
		return util.NewPermanent("NOTIFY_ENCODE", "encode notification", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return util.NewPermanent("NOTIFY_REQUEST", "build notification request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return util.NewTransient("NOTIFY_UNREACHABLE", "escalation webhook unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return util.NewTransient("NOTIFY_UPSTREAM",
			fmt.Sprintf("escalation webhook returned %d", resp.StatusCode), nil)
	default:
		return util.NewPermanent("NOTIFY_REJECTED",
			fmt.Sprintf("escalation webhook rejected request with %d", resp.StatusCode), nil)
	}
}

// RegisterHandlers subscribes to pipeline events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventEscalated, n.handleEscalated)
	n.dispatcher.Subscribe(events.EventProcessingFailed, n.handleProcessingFailed)
}

func (n *NotificationService) handleTicketCreated(_ context.Context, event events.Event) error {
	n.logger.Info("TicketCreated",
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleEscalated(_ context.Context, event events.Event) error {
	n.logger.Info("Escalated",
		zap.String("ticket_id", event.TicketID),
		zap.String("source_id", event.SourceID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleProcessingFailed(_ context.Context, event events.Event) error {
	n.logger.Warn("ProcessingFailed",
		zap.String("source_id", event.SourceID),
		zap.Any("payload", event.Payload))
	return nil
}
