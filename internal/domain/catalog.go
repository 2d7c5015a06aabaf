package domain

import "time"

// CatalogEntry maps a deliverable item name to its delivery link. Lookups
// are case-insensitive on Name.
type CatalogEntry struct {
	Name      string
	Link      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
