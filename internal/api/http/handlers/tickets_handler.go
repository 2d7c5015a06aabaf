package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-bot/internal/api/dto"
	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/pkg/util"
)

// TicketsHandler exposes the reviewer-facing ticket commands.
type TicketsHandler struct {
	lifecycle *service.LifecycleService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(lifecycle *service.LifecycleService) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle}
}

// CreateTicket POST /tickets opens a ticket on behalf of an owner.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if req.Owner == "" {
		return util.NewValidationError("owner required", nil)
	}
	ticket, err := h.lifecycle.CreateRequest(c.UserContext(), req.Owner)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// ListTickets GET /tickets snapshots all open tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets := h.lifecycle.Tickets()
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.FromTicket(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:channel.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.Ticket(c.Params("channel"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Decide POST /tickets/:channel/decision applies a manual reviewer verdict.
func (h *TicketsHandler) Decide(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return util.NewUnauthorized("authentication required")
	}
	var req dto.DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	decider := domain.Actor{ID: principal.Name, Privileged: true}
	if err := h.lifecycle.Decision(c.UserContext(), c.Params("channel"), req.Accepted, decider); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"accepted": req.Accepted}})
}

// ForceClose POST /tickets/:channel/close.
func (h *TicketsHandler) ForceClose(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return util.NewUnauthorized("authentication required")
	}
	closer := domain.Actor{ID: principal.Name, Privileged: true}
	if err := h.lifecycle.CloseRequest(c.UserContext(), c.Params("channel"), closer); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"closed": true}})
}

// CancelClose POST /tickets/:channel/cancel-close aborts a pending close.
func (h *TicketsHandler) CancelClose(c *fiber.Ctx) error {
	cancelled := h.lifecycle.CancelClose(c.Params("channel"))
	return c.JSON(fiber.Map{"data": fiber.Map{"cancelled": cancelled}})
}

// RemoveCooldown DELETE /cooldowns/:owner clears a user's cooldown.
func (h *TicketsHandler) RemoveCooldown(c *fiber.Ctx) error {
	if err := h.lifecycle.RemoveCooldown(c.UserContext(), c.Params("owner")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"removed": true}})
}
