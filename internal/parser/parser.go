// Package parser turns raw ingestion payloads into parsed messages and
// extracts the ticket reference token embedded in subject or body.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
	"github.com/spec-kit/mail-helpdesk/pkg/util"
)

// rawEmail is the wire shape carried inside a push notification's data field.
type rawEmail struct {
	ID         string `json:"id"`
	Sender     string `json:"sender"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	ReceivedAt string `json:"received_at"`
}

// Reference token patterns, most specific first. The first match wins.
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[TICKET-([A-Za-z0-9-]+)\]`),
	regexp.MustCompile(`(?i)\bTicket:\s*([A-Za-z0-9-]+)`),
	regexp.MustCompile(`(?i)\bID:\s*([A-Za-z0-9-]+)`),
	regexp.MustCompile(`#([0-9]+)\b`),
}

// Parser validates raw payloads. Malformed payloads never enter the
// pipeline; they are routed to the error queue by the caller.
type Parser struct{}

// New returns a Parser.
func New() *Parser {
	return &Parser{}
}

// Parse decodes one ingestion event. The returned message is immutable
// input for the rest of the pipeline.
func (p *Parser) Parse(ev domain.IngestionEvent) (domain.ParsedMessage, error) {
	var raw rawEmail
	if err := json.Unmarshal(ev.RawPayload, &raw); err != nil {
		return domain.ParsedMessage{}, util.NewMalformed("payload is not valid JSON", err)
	}
	if strings.TrimSpace(raw.Sender) == "" {
		return domain.ParsedMessage{}, util.NewMalformed("payload missing sender", nil)
	}
	if strings.TrimSpace(raw.Subject) == "" && strings.TrimSpace(raw.Body) == "" {
		return domain.ParsedMessage{}, util.NewMalformed("payload has neither subject nor body", nil)
	}

	receivedAt := ev.ReceivedAt
	if raw.ReceivedAt != "" {
		if ts, err := time.Parse(time.RFC3339, raw.ReceivedAt); err == nil {
			receivedAt = ts
		}
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	sourceID := ev.SourceID
	if sourceID == "" {
		sourceID = raw.ID
	}
	if sourceID == "" {
		return domain.ParsedMessage{}, util.NewMalformed("payload missing source identifier", nil)
	}

	return domain.ParsedMessage{
		SourceID:       sourceID,
		Sender:         raw.Sender,
		Subject:        raw.Subject,
		Body:           raw.Body,
		ReferenceToken: ExtractReference(raw.Subject, raw.Body),
		ReceivedAt:     receivedAt,
	}, nil
}

// ExtractReference scans subject then body for a ticket reference token.
// Returns "" when the message references no existing conversation.
func ExtractReference(subject, body string) string {
	text := subject + " " + body
	for _, pattern := range referencePatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// LaneKey derives the serialization key for an event before full parsing:
// events referencing the same ticket must share a lane, everything else may
// run in parallel. Unparseable payloads fall back to the source identifier;
// they will be rejected as malformed inside the lane.
func LaneKey(ev domain.IngestionEvent) string {
	var raw rawEmail
	if err := json.Unmarshal(ev.RawPayload, &raw); err == nil {
		if token := ExtractReference(raw.Subject, raw.Body); token != "" {
			return token
		}
	}
	return ev.SourceID
}
