package drafts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spec-kit/mail-helpdesk/pkg/util"
)

// HTTPCreator posts drafts to the mail provider's draft endpoint.
type HTTPCreator struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPCreator builds the adapter. The per-attempt deadline is enforced by
// the resilience wrapper's context, not by the HTTP client.
func NewHTTPCreator(endpoint, token string) *HTTPCreator {
	return &HTTPCreator{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type draftPayload struct {
	TicketID    string   `json:"ticket_id"`
	To          string   `json:"to"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Attachments []string `json:"attachments,omitempty"`
}

type draftResponse struct {
	DraftID string `json:"draft_id"`
}

func (c *HTTPCreator) CreateDraft(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(draftPayload{
		TicketID:    req.TicketID,
		To:          req.To,
		Subject:     req.Subject,
		Body:        req.Body,
		Attachments: req.Attachments,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", util.NewTransient("DRAFTS_UNREACHABLE", "draft endpoint unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", util.NewTransient("DRAFTS_UPSTREAM", fmt.Sprintf("draft endpoint returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return "", util.NewPermanent("DRAFTS_REJECTED", fmt.Sprintf("draft endpoint rejected request with %d", resp.StatusCode), nil)
	}

	var decoded draftResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", util.NewPermanent("DRAFTS_BAD_RESPONSE", "unparseable draft response", err)
	}
	return decoded.DraftID, nil
}
