package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-bot/internal/api/http/handlers"
	"github.com/spec-kit/ticket-bot/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Catalog        *handlers.CatalogHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Every route except health and login is
// reviewer-only; chat users never reach this surface.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireReviewer())

	protected.Post("/tickets", cfg.Tickets.CreateTicket)
	protected.Get("/tickets", cfg.Tickets.ListTickets)
	protected.Get("/tickets/:channel", cfg.Tickets.GetTicket)
	protected.Post("/tickets/:channel/decision", cfg.Tickets.Decide)
	protected.Post("/tickets/:channel/close", cfg.Tickets.ForceClose)
	protected.Post("/tickets/:channel/cancel-close", cfg.Tickets.CancelClose)
	protected.Delete("/cooldowns/:owner", cfg.Tickets.RemoveCooldown)

	protected.Post("/items", cfg.Catalog.UpsertItem)
	protected.Get("/items", cfg.Catalog.ListItems)
	protected.Delete("/items/:name", cfg.Catalog.RemoveItem)
	protected.Post("/items/:name/send", cfg.Catalog.SendItem)
}
