package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-bot/internal/api/dto"
	"github.com/spec-kit/ticket-bot/internal/repository"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/pkg/util"
)

// CatalogHandler exposes the admin catalog commands.
type CatalogHandler struct {
	catalog   repository.CatalogRepository
	lifecycle *service.LifecycleService
}

// NewCatalogHandler constructs handler.
func NewCatalogHandler(catalog repository.CatalogRepository, lifecycle *service.LifecycleService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, lifecycle: lifecycle}
}

// UpsertItem POST /items adds or updates a catalog item.
func (h *CatalogHandler) UpsertItem(c *fiber.Ctx) error {
	var req dto.UpsertItemRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if req.Name == "" || req.Link == "" {
		return util.NewValidationError("name and link required", nil)
	}
	entry, err := h.catalog.Upsert(c.UserContext(), req.Name, req.Link)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromCatalogEntry(entry)})
}

// RemoveItem DELETE /items/:name.
func (h *CatalogHandler) RemoveItem(c *fiber.Ctx) error {
	removed, err := h.catalog.Remove(c.UserContext(), c.Params("name"))
	if err != nil {
		return err
	}
	if !removed {
		return util.NewNotFound("catalog item", map[string]any{"name": c.Params("name")})
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"removed": true}})
}

// ListItems GET /items.
func (h *CatalogHandler) ListItems(c *fiber.Ctx) error {
	entries, err := h.catalog.List(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.CatalogItemResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.FromCatalogEntry(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// SendItem POST /items/:name/send delivers an item link straight to a user.
func (h *CatalogHandler) SendItem(c *fiber.Ctx) error {
	var req dto.SendItemRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if req.User == "" {
		return util.NewValidationError("user required", nil)
	}
	if err := h.lifecycle.SendItem(c.UserContext(), req.User, c.Params("name")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"sent": true}})
}
