package domain

import "time"

// IngestionEvent is one raw delivery from the ingestion source. The source
// provides at-least-once semantics: the same SourceID may arrive any number
// of times, possibly concurrently. Identity is SourceID, never arrival order.
type IngestionEvent struct {
	SourceID   string
	RawPayload []byte
	ReceivedAt time.Time
}

// ParsedMessage is the immutable result of parsing one inbound email.
type ParsedMessage struct {
	SourceID       string
	Sender         string
	Subject        string
	Body           string
	ReferenceToken string
	ReceivedAt     time.Time
}

// HasReference reports whether the message carries a ticket reference token.
func (m ParsedMessage) HasReference() bool {
	return m.ReferenceToken != ""
}
