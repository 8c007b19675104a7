package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mail-helpdesk/internal/api/dto"
	"github.com/spec-kit/mail-helpdesk/internal/domain"
	"github.com/spec-kit/mail-helpdesk/internal/memory"
	"github.com/spec-kit/mail-helpdesk/internal/tickets"
)

const maxTurnPage = 100

// TicketsHandler serves the read-only ticket API used by operators.
type TicketsHandler struct {
	store tickets.Store
	log   memory.Log
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(store tickets.Store, log memory.Log) *TicketsHandler {
	return &TicketsHandler{store: store, log: log}
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.store.Fetch(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, tickets.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "ticket not found")
		}
		return err
	}
	return c.JSON(fiber.Map{"data": ticketView(ticket)})
}

// ListTurns GET /tickets/:id/turns.
func (h *TicketsHandler) ListTurns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", maxTurnPage)
	if limit <= 0 || limit > maxTurnPage {
		limit = maxTurnPage
	}

	if _, err := h.store.Fetch(c.Context(), c.Params("id")); err != nil {
		if errors.Is(err, tickets.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "ticket not found")
		}
		return err
	}

	turns, err := h.log.RecentContext(c.Context(), c.Params("id"), limit)
	if err != nil {
		return err
	}
	items := make([]dto.TurnView, 0, len(turns))
	for i := range turns {
		items = append(items, turnView(&turns[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func ticketView(t *domain.Ticket) dto.TicketView {
	return dto.TicketView{
		ID:         t.ID,
		Requester:  t.Requester,
		Subject:    t.Subject,
		Status:     string(t.Status),
		LastIntent: string(t.LastIntent),
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
		ClosedAt:   t.ClosedAt,
	}
}

func turnView(t *domain.Turn) dto.TurnView {
	return dto.TurnView{
		ID:          t.ID,
		Direction:   string(t.Direction),
		Intent:      string(t.Intent),
		Body:        t.Body,
		Attachments: t.Attachments,
		CreatedAt:   t.CreatedAt,
	}
}
