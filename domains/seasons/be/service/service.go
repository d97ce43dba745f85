// Package service implements the season lifecycle: creation, patching,
// activation, irreversible closure and soft deletion, all scoped to the
// owning school and guarded by the overlap and single-active invariants.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/enrolly/enrolly-backend/platform/go/requesttrace"
)

// Sentinel errors returned by the service layer.
var (
	// ErrNotFound covers both true absence and seasons owned by another
	// school; callers must not be able to tell the two apart.
	ErrNotFound      = errors.New("season not found")
	ErrNoActive      = errors.New("school has no active season")
	ErrClosed        = errors.New("season is closed")
	ErrAlreadyClosed = errors.New("season is already closed")
	ErrHasData       = errors.New("closed season carries committed history")
	// ErrOverlap and ErrDateOrder are internal repository signals; the
	// service converts them into start_date-attributed ValidationErrors
	// before they leave.
	ErrOverlap   = errors.New("season dates overlap an existing season")
	ErrDateOrder = errors.New("season start date must precede its end date")
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Season represents the domain model of an operating period. The
// [StartDate, EndDate) interval is half-open: a season may start on the day
// its predecessor ends.
type Season struct {
	ID        uuid.UUID
	SchoolID  uuid.UUID
	Name      string
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
	IsClosed  bool
	ClosedAt  *time.Time
	ClosedBy  *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateInput represents the request to create a season.
type CreateInput struct {
	Name      string
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
}

// UpdateInput represents the patchable season fields.
type UpdateInput struct {
	Name      *string
	StartDate *time.Time
	EndDate   *time.Time
	IsActive  *bool
}

// Repository abstracts persistence. Implementations enforce the multi-row
// invariants atomically: Create/Update/Activate never leave a school with two
// active seasons, and the overlap check runs in the same transaction as the
// write.
type Repository interface {
	Create(ctx context.Context, s Season) (Season, error)
	Update(ctx context.Context, schoolID, seasonID uuid.UUID, input UpdateInput, now time.Time) (Season, error)
	Activate(ctx context.Context, schoolID, seasonID uuid.UUID, now time.Time) (Season, error)
	Close(ctx context.Context, schoolID, seasonID, closedBy uuid.UUID, now time.Time) (Season, error)
	SoftDelete(ctx context.Context, schoolID, seasonID uuid.UUID, now time.Time) error
	Get(ctx context.Context, schoolID, seasonID uuid.UUID) (Season, error)
	GetBySeasonID(ctx context.Context, seasonID uuid.UUID) (Season, error)
	GetActive(ctx context.Context, schoolID uuid.UUID) (Season, error)
	ListBySchool(ctx context.Context, schoolID uuid.UUID) ([]Season, error)
	ListForUser(ctx context.Context, schoolID, userID uuid.UUID) ([]Season, error)
}

// Overlaps reports whether two half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. It is the single overlap predicate shared by
// every repository implementation and mirrored by the SQL check.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Service provides season lifecycle operations.
type Service struct {
	repo Repository
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("seasons repo is required")
	}
	return &Service{repo: repo}
}

// Create validates and inserts a season for the school. When IsActive is set
// the repository deactivates the current active season in the same atomic
// unit, so readers never observe zero or two active seasons.
func (s *Service) Create(ctx context.Context, schoolID uuid.UUID, input CreateInput) (Season, error) {
	fieldErrors := FieldErrors{}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		fieldErrors.add("name", "name is required")
	}
	if input.StartDate.IsZero() {
		fieldErrors.add("start_date", "start_date is required")
	}
	if input.EndDate.IsZero() {
		fieldErrors.add("end_date", "end_date is required")
	}
	if !input.StartDate.IsZero() && !input.EndDate.IsZero() && !input.StartDate.Before(input.EndDate) {
		fieldErrors.add("start_date", "start_date must be before end_date")
	}
	if len(fieldErrors) > 0 {
		return Season{}, &ValidationError{Fields: fieldErrors}
	}

	now := time.Now().UTC()
	season := Season{
		ID:        uuid.New(),
		SchoolID:  schoolID,
		Name:      name,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		IsActive:  input.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.repo.Create(ctx, season)
	if err != nil {
		return Season{}, mapRepoError(err)
	}
	return created, nil
}

// Update patches an open season. Closed seasons reject every change; date
// patches re-run the order and overlap validation, excluding the season
// itself from the overlap check.
func (s *Service) Update(ctx context.Context, schoolID, seasonID uuid.UUID, input UpdateInput) (Season, error) {
	if input.Name == nil && input.StartDate == nil && input.EndDate == nil && input.IsActive == nil {
		return Season{}, &ValidationError{Fields: FieldErrors{"payload": {"at least one field must be provided"}}}
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return Season{}, &ValidationError{Fields: FieldErrors{"name": {"name cannot be empty"}}}
	}

	if input.StartDate != nil || input.EndDate != nil {
		current, err := s.repo.Get(ctx, schoolID, seasonID)
		if err != nil {
			return Season{}, err
		}
		start := current.StartDate
		end := current.EndDate
		if input.StartDate != nil {
			start = *input.StartDate
		}
		if input.EndDate != nil {
			end = *input.EndDate
		}
		if !start.Before(end) {
			return Season{}, &ValidationError{Fields: FieldErrors{"start_date": {"start_date must be before end_date"}}}
		}
	}

	updated, err := s.repo.Update(ctx, schoolID, seasonID, input, time.Now().UTC())
	if err != nil {
		return Season{}, mapRepoError(err)
	}
	return updated, nil
}

// Activate marks the season active, deactivating any active sibling within
// the same atomic operation.
func (s *Service) Activate(ctx context.Context, schoolID, seasonID uuid.UUID) (Season, error) {
	return s.repo.Activate(ctx, schoolID, seasonID, time.Now().UTC())
}

// Close transitions the season to its terminal closed state. There is no
// reopen: the transition is write-once and a repeat attempt fails with
// ErrAlreadyClosed rather than being treated as a retry. The closing actor is
// taken from the request's audit info; anonymous and system actors leave
// closed_by zeroed.
func (s *Service) Close(ctx context.Context, schoolID, seasonID uuid.UUID) (Season, error) {
	closedBy := uuid.Nil
	if audit := requesttrace.FromContextOrAnonymous(ctx); audit.UserID != nil {
		closedBy = *audit.UserID
	}
	return s.repo.Close(ctx, schoolID, seasonID, closedBy, time.Now().UTC())
}

// Delete soft-deletes an open season. Closed seasons are frozen history and
// fail with ErrHasData.
func (s *Service) Delete(ctx context.Context, schoolID, seasonID uuid.UUID) error {
	return s.repo.SoftDelete(ctx, schoolID, seasonID, time.Now().UTC())
}

// GetCurrent returns the school's single active season.
func (s *Service) GetCurrent(ctx context.Context, schoolID uuid.UUID) (Season, error) {
	season, err := s.repo.GetActive(ctx, schoolID)
	if errors.Is(err, ErrNotFound) {
		return Season{}, ErrNoActive
	}
	return season, err
}

// GetByID returns a season scoped strictly to the school. A season owned by
// a different school yields ErrNotFound, never an authorization error.
func (s *Service) GetByID(ctx context.Context, schoolID, seasonID uuid.UUID) (Season, error) {
	return s.repo.Get(ctx, schoolID, seasonID)
}

// Resolve returns a season by id without school scoping. Reserved for the
// credential issuer, which derives the owning school from the season chosen
// at login.
func (s *Service) Resolve(ctx context.Context, seasonID uuid.UUID) (Season, error) {
	return s.repo.GetBySeasonID(ctx, seasonID)
}

// List returns the school's non-deleted seasons.
func (s *Service) List(ctx context.Context, schoolID uuid.UUID) ([]Season, error) {
	return s.repo.ListBySchool(ctx, schoolID)
}

// ListForUser returns the school's seasons in which the user holds a role.
func (s *Service) ListForUser(ctx context.Context, schoolID, userID uuid.UUID) ([]Season, error) {
	return s.repo.ListForUser(ctx, schoolID, userID)
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, ErrOverlap):
		return &ValidationError{Fields: FieldErrors{"start_date": {"season dates overlap an existing season"}}}
	case errors.Is(err, ErrDateOrder):
		return &ValidationError{Fields: FieldErrors{"start_date": {"start_date must be before end_date"}}}
	default:
		return err
	}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}
