package dto

import "time"

// TicketView is the read model for one ticket.
type TicketView struct {
	ID         string     `json:"id"`
	Requester  string     `json:"requester"`
	Subject    string     `json:"subject"`
	Status     string     `json:"status"`
	LastIntent string     `json:"last_intent"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// TurnView is the read model for one conversation turn.
type TurnView struct {
	ID          string    `json:"id"`
	Direction   string    `json:"direction"`
	Intent      string    `json:"intent,omitempty"`
	Body        string    `json:"body"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
