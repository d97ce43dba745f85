package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/enrolly/enrolly-backend/domains/seasons/be/service"
)

// Memory is an in-memory season repository with the same semantics as the
// Postgres one. A single mutex plays the role of the per-school transaction.
type Memory struct {
	mu          sync.Mutex
	seasons     map[uuid.UUID]service.Season
	deleted     map[uuid.UUID]struct{}
	memberships map[uuid.UUID]map[uuid.UUID]struct{} // userID -> seasonIDs
}

// NewMemory creates an empty in-memory season repository.
func NewMemory() *Memory {
	return &Memory{
		seasons:     map[uuid.UUID]service.Season{},
		deleted:     map[uuid.UUID]struct{}{},
		memberships: map[uuid.UUID]map[uuid.UUID]struct{}{},
	}
}

// GrantMembership records that the user holds a role in the season. Test
// fixtures use it to drive ListForUser.
func (r *Memory) GrantMembership(userID, seasonID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.memberships[userID] == nil {
		r.memberships[userID] = map[uuid.UUID]struct{}{}
	}
	r.memberships[userID][seasonID] = struct{}{}
}

func (r *Memory) Create(_ context.Context, s service.Season) (service.Season, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.overlapsLocked(s.SchoolID, s.StartDate, s.EndDate, uuid.Nil) {
		return service.Season{}, service.ErrOverlap
	}
	if s.IsActive {
		r.deactivateSiblingsLocked(s.SchoolID, s.UpdatedAt)
	}
	r.seasons[s.ID] = s
	return s, nil
}

func (r *Memory) Update(_ context.Context, schoolID, seasonID uuid.UUID, input service.UpdateInput, now time.Time) (service.Season, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.getLocked(schoolID, seasonID)
	if !ok {
		return service.Season{}, service.ErrNotFound
	}
	if current.IsClosed {
		return service.Season{}, service.ErrClosed
	}

	next := current
	if input.Name != nil {
		next.Name = *input.Name
	}
	if input.StartDate != nil {
		next.StartDate = *input.StartDate
	}
	if input.EndDate != nil {
		next.EndDate = *input.EndDate
	}
	if input.IsActive != nil {
		next.IsActive = *input.IsActive
	}

	if input.StartDate != nil || input.EndDate != nil {
		if !next.StartDate.Before(next.EndDate) {
			return service.Season{}, service.ErrDateOrder
		}
		if r.overlapsLocked(schoolID, next.StartDate, next.EndDate, seasonID) {
			return service.Season{}, service.ErrOverlap
		}
	}
	if input.IsActive != nil && *input.IsActive && !current.IsActive {
		r.deactivateSiblingsLocked(schoolID, now)
	}

	next.UpdatedAt = now
	r.seasons[seasonID] = next
	return next, nil
}

func (r *Memory) Activate(_ context.Context, schoolID, seasonID uuid.UUID, now time.Time) (service.Season, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.getLocked(schoolID, seasonID)
	if !ok {
		return service.Season{}, service.ErrNotFound
	}
	if current.IsClosed {
		return service.Season{}, service.ErrClosed
	}

	r.deactivateSiblingsLocked(schoolID, now)
	current.IsActive = true
	current.UpdatedAt = now
	r.seasons[seasonID] = current
	return current, nil
}

func (r *Memory) Close(_ context.Context, schoolID, seasonID, closedBy uuid.UUID, now time.Time) (service.Season, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.getLocked(schoolID, seasonID)
	if !ok {
		return service.Season{}, service.ErrNotFound
	}
	if current.IsClosed {
		return service.Season{}, service.ErrAlreadyClosed
	}

	current.IsClosed = true
	current.IsActive = false
	current.ClosedAt = &now
	current.ClosedBy = &closedBy
	current.UpdatedAt = now
	r.seasons[seasonID] = current
	return current, nil
}

func (r *Memory) SoftDelete(_ context.Context, schoolID, seasonID uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.getLocked(schoolID, seasonID)
	if !ok {
		return service.ErrNotFound
	}
	if current.IsClosed {
		return service.ErrHasData
	}

	current.IsActive = false
	current.UpdatedAt = now
	r.seasons[seasonID] = current
	r.deleted[seasonID] = struct{}{}
	return nil
}

func (r *Memory) Get(_ context.Context, schoolID, seasonID uuid.UUID) (service.Season, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	season, ok := r.getLocked(schoolID, seasonID)
	if !ok {
		return service.Season{}, service.ErrNotFound
	}
	return season, nil
}

func (r *Memory) GetBySeasonID(_ context.Context, seasonID uuid.UUID) (service.Season, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	season, ok := r.seasons[seasonID]
	if !ok {
		return service.Season{}, service.ErrNotFound
	}
	if _, gone := r.deleted[seasonID]; gone {
		return service.Season{}, service.ErrNotFound
	}
	return season, nil
}

func (r *Memory) GetActive(_ context.Context, schoolID uuid.UUID) (service.Season, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, season := range r.seasons {
		if _, gone := r.deleted[id]; gone {
			continue
		}
		if season.SchoolID == schoolID && season.IsActive {
			return season, nil
		}
	}
	return service.Season{}, service.ErrNotFound
}

func (r *Memory) ListBySchool(_ context.Context, schoolID uuid.UUID) ([]service.Season, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(schoolID, nil), nil
}

func (r *Memory) ListForUser(_ context.Context, schoolID, userID uuid.UUID) ([]service.Season, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(schoolID, r.memberships[userID]), nil
}

func (r *Memory) getLocked(schoolID, seasonID uuid.UUID) (service.Season, bool) {
	if _, gone := r.deleted[seasonID]; gone {
		return service.Season{}, false
	}
	season, ok := r.seasons[seasonID]
	if !ok || season.SchoolID != schoolID {
		return service.Season{}, false
	}
	return season, true
}

func (r *Memory) listLocked(schoolID uuid.UUID, filter map[uuid.UUID]struct{}) []service.Season {
	seasons := make([]service.Season, 0)
	for id, season := range r.seasons {
		if _, gone := r.deleted[id]; gone {
			continue
		}
		if season.SchoolID != schoolID {
			continue
		}
		if filter != nil {
			if _, member := filter[id]; !member {
				continue
			}
		}
		seasons = append(seasons, season)
	}
	sort.Slice(seasons, func(i, j int) bool {
		return seasons[i].StartDate.Before(seasons[j].StartDate)
	})
	return seasons
}

func (r *Memory) overlapsLocked(schoolID uuid.UUID, start, end time.Time, excludeID uuid.UUID) bool {
	for id, season := range r.seasons {
		if id == excludeID {
			continue
		}
		if _, gone := r.deleted[id]; gone {
			continue
		}
		if season.SchoolID != schoolID {
			continue
		}
		if service.Overlaps(start, end, season.StartDate, season.EndDate) {
			return true
		}
	}
	return false
}

func (r *Memory) deactivateSiblingsLocked(schoolID uuid.UUID, now time.Time) {
	for id, season := range r.seasons {
		if _, gone := r.deleted[id]; gone {
			continue
		}
		if season.SchoolID == schoolID && season.IsActive {
			season.IsActive = false
			season.UpdatedAt = now
			r.seasons[id] = season
		}
	}
}
