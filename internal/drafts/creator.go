// Package drafts is the contract with the outgoing draft creator.
package drafts

import "context"

// Request describes one draft reply.
type Request struct {
	TicketID    string
	To          string
	Subject     string
	Body        string
	Attachments []string
}

// Creator files a draft with the mail provider and returns its identifier.
type Creator interface {
	CreateDraft(ctx context.Context, req Request) (string, error)
}
