package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "OPEN"
	TicketStatusClosed TicketStatus = "CLOSED"
	// TicketStatusSuperseded marks a ticket that was forked because the
	// conversation changed topic. It receives no further turns.
	TicketStatusSuperseded TicketStatus = "SUPERSEDED"
)

// Ticket is the aggregate for one support conversation. All mutation goes
// through the per-ticket lane; readers outside the lane see committed state.
type Ticket struct {
	ID         string
	Requester  string
	Subject    string
	Status     TicketStatus
	LastIntent Intent
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ClosedAt   *time.Time
}

// Open reports whether the ticket still accepts turns.
func (t *Ticket) Open() bool {
	return t.Status == TicketStatusOpen
}

// TurnDirection indicates whether a turn entered or left the helpdesk.
type TurnDirection string

const (
	TurnIncoming TurnDirection = "INCOMING"
	TurnOutgoing TurnDirection = "OUTGOING"
)

// Turn is one immutable exchange unit within a ticket. Append order within a
// ticket equals processing order for that ticket.
type Turn struct {
	ID          string
	TicketID    string
	Direction   TurnDirection
	SourceID    string
	Intent      Intent
	Body        string
	Attachments []string
	CreatedAt   time.Time
}
