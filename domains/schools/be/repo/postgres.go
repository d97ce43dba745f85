// Package repo provides school repositories: a Postgres-backed one for
// production and an in-memory one for tests.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/enrolly/enrolly-backend/domains/schools/be/service"
	"github.com/enrolly/enrolly-backend/platform/go/persistence"
)

// Postgres adapts persistence.SchoolStore to the schools service.
type Postgres struct {
	store *persistence.SchoolStore
}

// NewPostgres creates a Postgres-backed school repository.
func NewPostgres(store *persistence.SchoolStore) (*Postgres, error) {
	if store == nil {
		return nil, errors.New("school store is required")
	}
	return &Postgres{store: store}, nil
}

func (r *Postgres) Get(ctx context.Context, schoolID uuid.UUID) (service.School, error) {
	rec, err := r.store.Get(ctx, schoolID)
	if errors.Is(err, persistence.ErrNotFound) {
		return service.School{}, service.ErrNotFound
	}
	if err != nil {
		return service.School{}, err
	}
	return toSchool(rec), nil
}

func (r *Postgres) ListForUser(ctx context.Context, userID uuid.UUID) ([]service.School, error) {
	records, err := r.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing schools for user: %w", err)
	}
	schools := make([]service.School, 0, len(records))
	for _, rec := range records {
		schools = append(schools, toSchool(rec))
	}
	return schools, nil
}

func toSchool(rec persistence.SchoolRecord) service.School {
	return service.School{
		ID:       rec.SchoolID,
		Name:     rec.Name,
		Slug:     rec.Slug,
		IsActive: rec.IsActive,
	}
}
