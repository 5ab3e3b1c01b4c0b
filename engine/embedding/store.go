package embedding

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// BusinessFilter narrows the candidate set for a backfill run.
type BusinessFilter struct {
	IDs           []string
	Categories    []string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// BusinessStore enumerates candidate records for embedding. Read-only.
type BusinessStore interface {
	ListBusinesses(ctx context.Context, filter *BusinessFilter) ([]Business, error)
}

type pgBusinessStore struct {
	db DB
}

func NewBusinessStore(db DB) BusinessStore {
	return &pgBusinessStore{db: db}
}

func (s *pgBusinessStore) ListBusinesses(ctx context.Context, filter *BusinessFilter) ([]Business, error) {
	builder := strings.Builder{}
	builder.WriteString(
		`SELECT id, name, COALESCE(description, ''), COALESCE(website, ''), COALESCE(category, ''), created_at, updated_at
		FROM businesses WHERE TRUE`)
	var args []any
	if filter != nil {
		if len(filter.IDs) > 0 {
			builder.WriteString(fmt.Sprintf(" AND id = ANY($%d)", len(args)+1))
			args = append(args, filter.IDs)
		}
		if len(filter.Categories) > 0 {
			builder.WriteString(fmt.Sprintf(" AND category = ANY($%d)", len(args)+1))
			args = append(args, filter.Categories)
		}
		if filter.CreatedAfter != nil {
			builder.WriteString(fmt.Sprintf(" AND created_at >= $%d", len(args)+1))
			args = append(args, *filter.CreatedAfter)
		}
		if filter.CreatedBefore != nil {
			builder.WriteString(fmt.Sprintf(" AND created_at <= $%d", len(args)+1))
			args = append(args, *filter.CreatedBefore)
		}
	}
	builder.WriteString(" ORDER BY created_at DESC")
	rows, err := s.db.Query(ctx, builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()
	var out []Business
	for rows.Next() {
		var b Business
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Website, &b.Category, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan business: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list businesses rows: %w", err)
	}
	return out, nil
}

// MemoryBusinessStore is an in-memory BusinessStore for tests and local runs.
type MemoryBusinessStore struct {
	mu         sync.RWMutex
	businesses map[string]Business
}

func NewMemoryBusinessStore(businesses ...Business) *MemoryBusinessStore {
	store := &MemoryBusinessStore{businesses: make(map[string]Business)}
	for _, b := range businesses {
		store.businesses[b.ID] = b
	}
	return store
}

func (s *MemoryBusinessStore) Add(b Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[b.ID] = b
}

func (s *MemoryBusinessStore) ListBusinesses(_ context.Context, filter *BusinessFilter) ([]Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Business
	for _, b := range s.businesses {
		if !matchesFilter(b, filter) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func matchesFilter(b Business, filter *BusinessFilter) bool {
	if filter == nil {
		return true
	}
	if len(filter.IDs) > 0 && !containsString(filter.IDs, b.ID) {
		return false
	}
	if len(filter.Categories) > 0 && !containsString(filter.Categories, b.Category) {
		return false
	}
	if filter.CreatedAfter != nil && b.CreatedAt.Before(*filter.CreatedAfter) {
		return false
	}
	if filter.CreatedBefore != nil && b.CreatedAt.After(*filter.CreatedBefore) {
		return false
	}
	return true
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
