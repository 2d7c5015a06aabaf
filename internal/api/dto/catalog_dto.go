package dto

import (
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// UpsertItemRequest payload.
type UpsertItemRequest struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

// CatalogItemResponse response.
type CatalogItemResponse struct {
	Name      string    `json:"name"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FromCatalogEntry maps a catalog entry to its response form.
func FromCatalogEntry(entry *domain.CatalogEntry) CatalogItemResponse {
	return CatalogItemResponse{
		Name:      entry.Name,
		Link:      entry.Link,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	}
}
