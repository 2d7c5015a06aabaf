package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// CatalogRepository manages the deliverable item catalog. Lookups are
// case-insensitive on the item name.
type CatalogRepository interface {
	Upsert(ctx context.Context, name, link string) (*domain.CatalogEntry, error)
	Remove(ctx context.Context, name string) (bool, error)
	Lookup(ctx context.Context, name string) (*domain.CatalogEntry, error)
	List(ctx context.Context) ([]domain.CatalogEntry, error)
}

type catalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository builds the postgres-backed repository.
func NewCatalogRepository(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepository{pool: pool}
}

func (r *catalogRepository) Upsert(ctx context.Context, name, link string) (*domain.CatalogEntry, error) {
	const query = `
        INSERT INTO catalog_items (name, link)
        VALUES ($1,$2)
        ON CONFLICT (lower(name)) DO UPDATE SET link = EXCLUDED.link, updated_at = NOW()
        RETURNING name, link, created_at, updated_at`
	var entry domain.CatalogEntry
	if err := r.pool.QueryRow(ctx, query, strings.TrimSpace(name), strings.TrimSpace(link)).Scan(
		&entry.Name,
		&entry.Link,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *catalogRepository) Remove(ctx context.Context, name string) (bool, error) {
	const query = `DELETE FROM catalog_items WHERE lower(name) = lower($1)`
	cmd, err := r.pool.Exec(ctx, query, strings.TrimSpace(name))
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *catalogRepository) Lookup(ctx context.Context, name string) (*domain.CatalogEntry, error) {
	const query = `
        SELECT name, link, created_at, updated_at
        FROM catalog_items WHERE lower(name) = lower($1)`
	var entry domain.CatalogEntry
	if err := r.pool.QueryRow(ctx, query, strings.TrimSpace(name)).Scan(
		&entry.Name,
		&entry.Link,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *catalogRepository) List(ctx context.Context) ([]domain.CatalogEntry, error) {
	const query = `
        SELECT name, link, created_at, updated_at
        FROM catalog_items ORDER BY lower(name)`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CatalogEntry
	for rows.Next() {
		var entry domain.CatalogEntry
		if err := rows.Scan(&entry.Name, &entry.Link, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

type memoryCatalogRepository struct {
	mu      sync.Mutex
	entries map[string]domain.CatalogEntry
}

// NewMemoryCatalogRepository keeps the catalog in process memory, used when
// no database is configured and in tests.
func NewMemoryCatalogRepository() CatalogRepository {
	return &memoryCatalogRepository{entries: make(map[string]domain.CatalogEntry)}
}

func (r *memoryCatalogRepository) Upsert(ctx context.Context, name, link string) (*domain.CatalogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name = strings.TrimSpace(name)
	key := strings.ToLower(name)
	now := time.Now()
	entry, ok := r.entries[key]
	if !ok {
		entry = domain.CatalogEntry{Name: name, CreatedAt: now}
	}
	entry.Link = strings.TrimSpace(link)
	entry.UpdatedAt = now
	r.entries[key] = entry
	copied := entry
	return &copied, nil
}

func (r *memoryCatalogRepository) Remove(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(name))
	_, ok := r.entries[key]
	delete(r.entries, key)
	return ok, nil
}

func (r *memoryCatalogRepository) Lookup(ctx context.Context, name string) (*domain.CatalogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, nil
	}
	copied := entry
	return &copied, nil
}

func (r *memoryCatalogRepository) List(ctx context.Context) ([]domain.CatalogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.CatalogEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}
