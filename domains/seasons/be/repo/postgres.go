// Package repo provides season repositories: a Postgres-backed one for
// production and an in-memory one for tests.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/enrolly/enrolly-backend/domains/seasons/be/service"
	"github.com/enrolly/enrolly-backend/platform/go/persistence"
)

// Postgres adapts persistence.SeasonStore to the season service. It maps
// store sentinels onto service errors; the closed-season sentinel maps per
// operation because a closed season means a different failure for a patch
// than for a delete.
type Postgres struct {
	store *persistence.SeasonStore
}

// NewPostgres creates a Postgres-backed season repository.
func NewPostgres(store *persistence.SeasonStore) (*Postgres, error) {
	if store == nil {
		return nil, errors.New("season store is required")
	}
	return &Postgres{store: store}, nil
}

func (r *Postgres) Create(ctx context.Context, s service.Season) (service.Season, error) {
	rec, err := r.store.Create(ctx, persistence.CreateSeasonParams{
		SeasonID:  s.ID,
		SchoolID:  s.SchoolID,
		Name:      s.Name,
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
		IsActive:  s.IsActive,
		Now:       s.CreatedAt,
	})
	if err != nil {
		return service.Season{}, mapStoreError(err, service.ErrClosed)
	}
	return toSeason(rec), nil
}

func (r *Postgres) Update(ctx context.Context, schoolID, seasonID uuid.UUID, input service.UpdateInput, now time.Time) (service.Season, error) {
	rec, err := r.store.Update(ctx, schoolID, seasonID, persistence.UpdateSeasonParams{
		Name:      input.Name,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		IsActive:  input.IsActive,
		Now:       now,
	})
	if err != nil {
		return service.Season{}, mapStoreError(err, service.ErrClosed)
	}
	return toSeason(rec), nil
}

func (r *Postgres) Activate(ctx context.Context, schoolID, seasonID uuid.UUID, now time.Time) (service.Season, error) {
	rec, err := r.store.Activate(ctx, schoolID, seasonID, now)
	if err != nil {
		return service.Season{}, mapStoreError(err, service.ErrClosed)
	}
	return toSeason(rec), nil
}

func (r *Postgres) Close(ctx context.Context, schoolID, seasonID, closedBy uuid.UUID, now time.Time) (service.Season, error) {
	rec, err := r.store.Close(ctx, schoolID, seasonID, closedBy, now)
	if err != nil {
		return service.Season{}, mapStoreError(err, service.ErrAlreadyClosed)
	}
	return toSeason(rec), nil
}

func (r *Postgres) SoftDelete(ctx context.Context, schoolID, seasonID uuid.UUID, now time.Time) error {
	if err := r.store.SoftDelete(ctx, schoolID, seasonID, now); err != nil {
		return mapStoreError(err, service.ErrHasData)
	}
	return nil
}

func (r *Postgres) Get(ctx context.Context, schoolID, seasonID uuid.UUID) (service.Season, error) {
	rec, err := r.store.Get(ctx, schoolID, seasonID)
	if err != nil {
		return service.Season{}, mapStoreError(err, service.ErrClosed)
	}
	return toSeason(rec), nil
}

func (r *Postgres) GetBySeasonID(ctx context.Context, seasonID uuid.UUID) (service.Season, error) {
	rec, err := r.store.GetByID(ctx, seasonID)
	if err != nil {
		return service.Season{}, mapStoreError(err, service.ErrClosed)
	}
	return toSeason(rec), nil
}

func (r *Postgres) GetActive(ctx context.Context, schoolID uuid.UUID) (service.Season, error) {
	rec, err := r.store.GetActive(ctx, schoolID)
	if err != nil {
		return service.Season{}, mapStoreError(err, service.ErrClosed)
	}
	return toSeason(rec), nil
}

func (r *Postgres) ListBySchool(ctx context.Context, schoolID uuid.UUID) ([]service.Season, error) {
	records, err := r.store.ListBySchool(ctx, schoolID)
	if err != nil {
		return nil, fmt.Errorf("listing seasons: %w", err)
	}
	return toSeasons(records), nil
}

func (r *Postgres) ListForUser(ctx context.Context, schoolID, userID uuid.UUID) ([]service.Season, error) {
	records, err := r.store.ListForUser(ctx, schoolID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing seasons for user: %w", err)
	}
	return toSeasons(records), nil
}

// mapStoreError translates persistence sentinels. onClosed names the service
// error a closed season means for the calling operation.
func mapStoreError(err error, onClosed error) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrSeasonOverlap):
		return service.ErrOverlap
	case errors.Is(err, persistence.ErrSeasonDateOrder):
		return service.ErrDateOrder
	case errors.Is(err, persistence.ErrSeasonClosed):
		return onClosed
	default:
		return err
	}
}

func toSeason(rec persistence.SeasonRecord) service.Season {
	return service.Season{
		ID:        rec.SeasonID,
		SchoolID:  rec.SchoolID,
		Name:      rec.Name,
		StartDate: rec.StartDate,
		EndDate:   rec.EndDate,
		IsActive:  rec.IsActive,
		IsClosed:  rec.IsClosed,
		ClosedAt:  rec.ClosedAt,
		ClosedBy:  rec.ClosedBy,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toSeasons(records []persistence.SeasonRecord) []service.Season {
	seasons := make([]service.Season, 0, len(records))
	for _, rec := range records {
		seasons = append(seasons, toSeason(rec))
	}
	return seasons
}
