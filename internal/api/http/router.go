package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mail-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/mail-helpdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Webhooks       *handlers.WebhookHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	webhooks := app.Group("/webhooks", cfg.AuthMiddleware.Handle)
	webhooks.Post("/gmail", cfg.Webhooks.GmailPush)
	webhooks.Post("/manual-trigger", cfg.Webhooks.ManualTrigger)

	ticketGroup := app.Group("/tickets")
	ticketGroup.Get("/:id", cfg.Tickets.GetTicket)
	ticketGroup.Get("/:id/turns", cfg.Tickets.ListTurns)
}
