package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketSuperseded EventType = "ticket_superseded"
	EventTurnAppended     EventType = "turn_appended"
	EventDraftCreated     EventType = "draft_created"
	EventEscalated        EventType = "escalated"
	EventProcessingFailed EventType = "processing_failed"
)

// Event represents a domain event emitted by the pipeline.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	SourceID  string      `json:"source_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Requester  string `json:"requester"`
	Subject    string `json:"subject"`
	Intent     string `json:"intent"`
	Forked     bool   `json:"forked"`
	Superseded string `json:"superseded,omitempty"`
}

// TurnAppendedPayload payload.
type TurnAppendedPayload struct {
	TurnID    string `json:"turn_id"`
	Direction string `json:"direction"`
	Intent    string `json:"intent,omitempty"`
}

// DraftCreatedPayload payload.
type DraftCreatedPayload struct {
	DraftID string `json:"draft_id"`
	To      string `json:"to"`
	Subject string `json:"subject"`
}

// EscalatedPayload payload.
type EscalatedPayload struct {
	Team   string `json:"team"`
	Reason string `json:"reason"`
}

// ProcessingFailedPayload payload.
type ProcessingFailedPayload struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}
