package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/enrolly/enrolly-backend/domains/seasons/be/repo"
	"github.com/enrolly/enrolly-backend/domains/seasons/be/service"
	"github.com/enrolly/enrolly-backend/platform/go/requesttrace"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func newService() (*service.Service, uuid.UUID) {
	return service.New(repo.NewMemory()), uuid.New()
}

func TestOverlaps(t *testing.T) {
	t.Parallel()

	sep := date(2025, time.September, 1)
	feb := date(2026, time.February, 1)
	jul := date(2026, time.July, 1)

	require.True(t, service.Overlaps(sep, feb, date(2026, time.January, 15), jul))
	require.True(t, service.Overlaps(sep, jul, feb, jul))
	// Adjacent half-open intervals share a boundary day without overlapping.
	require.False(t, service.Overlaps(sep, feb, feb, jul))
	require.False(t, service.Overlaps(feb, jul, sep, feb))
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, schoolID := newService()

	_, err := svc.Create(ctx, schoolID, service.CreateInput{
		Name:      "   ",
		StartDate: date(2026, time.July, 1),
		EndDate:   date(2025, time.September, 1),
	})
	var validationErr *service.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Fields, "name")
	require.Contains(t, validationErr.Fields, "start_date")
}

func TestCreateRejectsOverlap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, schoolID := newService()

	_, err := svc.Create(ctx, schoolID, service.CreateInput{
		Name:      "2025/26",
		StartDate: date(2025, time.September, 1),
		EndDate:   date(2026, time.July, 1),
		IsActive:  true,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, schoolID, service.CreateInput{
		Name:      "Overlap",
		StartDate: date(2026, time.June, 1),
		EndDate:   date(2026, time.December, 1),
	})
	var validationErr *service.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Fields, "start_date")

	// A different school is free to use the same dates.
	_, err = svc.Create(ctx, uuid.New(), service.CreateInput{
		Name:      "Elsewhere",
		StartDate: date(2026, time.June, 1),
		EndDate:   date(2026, time.December, 1),
	})
	require.NoError(t, err)
}

func TestSingleActiveSeasonSwap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, schoolID := newService()

	first, err := svc.Create(ctx, schoolID, service.CreateInput{
		Name:      "2025/26",
		StartDate: date(2025, time.September, 1),
		EndDate:   date(2026, time.July, 1),
		IsActive:  true,
	})
	require.NoError(t, err)

	second, err := svc.Create(ctx, schoolID, service.CreateInput{
		Name:      "2026/27",
		StartDate: date(2026, time.September, 1),
		EndDate:   date(2027, time.July, 1),
	})
	require.NoError(t, err)

	activated, err := svc.Activate(ctx, schoolID, second.ID)
	require.NoError(t, err)
	require.True(t, activated.IsActive)

	current, err := svc.GetCurrent(ctx, schoolID)
	require.NoError(t, err)
	require.Equal(t, second.ID, current.ID)

	refetched, err := svc.GetByID(ctx, schoolID, first.ID)
	require.NoError(t, err)
	require.False(t, refetched.IsActive)
}

func TestCloseIsTerminal(t *testing.T) {
	t.Parallel()
	svc, schoolID := newService()
	actor := uuid.New()
	// The closing actor travels in the request's audit info, the way the
	// request trace middleware delivers it.
	ctx := requesttrace.IntoContext(context.Background(), requesttrace.ForUser(actor, "req-1"))

	season, err := svc.Create(ctx, schoolID, service.CreateInput{
		Name:      "2025/26",
		StartDate: date(2025, time.September, 1),
		EndDate:   date(2026, time.July, 1),
		IsActive:  true,
	})
	require.NoError(t, err)

	closed, err := svc.Close(ctx, schoolID, season.ID)
	require.NoError(t, err)
	require.True(t, closed.IsClosed)
	require.False(t, closed.IsActive)
	require.NotNil(t, closed.ClosedAt)
	require.Equal(t, actor, *closed.ClosedBy)

	// Repeating the close is a conflict, not an idempotent success.
	_, err = svc.Close(ctx, schoolID, season.ID)
	require.ErrorIs(t, err, service.ErrAlreadyClosed)

	// Closed seasons reject patches, activation and deletion.
	name := "renamed"
	_, err = svc.Update(ctx, schoolID, season.ID, service.UpdateInput{Name: &name})
	require.ErrorIs(t, err, service.ErrClosed)
	_, err = svc.Activate(ctx, schoolID, season.ID)
	require.ErrorIs(t, err, service.ErrClosed)
	require.ErrorIs(t, svc.Delete(ctx, schoolID, season.ID), service.ErrHasData)

	// The closed season leaves the school without an active one.
	_, err = svc.GetCurrent(ctx, schoolID)
	require.ErrorIs(t, err, service.ErrNoActive)
}

func TestUpdatePartialDatePatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, schoolID := newService()

	season, err := svc.Create(ctx, schoolID, service.CreateInput{
		Name:      "2025/26",
		StartDate: date(2025, time.September, 1),
		EndDate:   date(2026, time.July, 1),
	})
	require.NoError(t, err)

	// Moving only the end date before the unchanged start date must fail.
	badEnd := date(2025, time.August, 1)
	_, err = svc.Update(ctx, schoolID, season.ID, service.UpdateInput{EndDate: &badEnd})
	var validationErr *service.ValidationError
	require.ErrorAs(t, err, &validationErr)

	newEnd := date(2026, time.August, 1)
	updated, err := svc.Update(ctx, schoolID, season.ID, service.UpdateInput{EndDate: &newEnd})
	require.NoError(t, err)
	require.Equal(t, newEnd, updated.EndDate)
	require.Equal(t, season.StartDate, updated.StartDate)

	// An empty patch is rejected outright.
	_, err = svc.Update(ctx, schoolID, season.ID, service.UpdateInput{})
	require.ErrorAs(t, err, &validationErr)
}

func TestRepoGuardsMergedDateOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := repo.NewMemory()
	svc := service.New(mem)
	schoolID := uuid.New()

	season, err := svc.Create(ctx, schoolID, service.CreateInput{
		Name:      "2025/26",
		StartDate: date(2025, time.September, 1),
		EndDate:   date(2026, time.July, 1),
	})
	require.NoError(t, err)

	// The service pre-checks date order, but only the repository sees the
	// final merged row; it must reject an inverting patch on its own.
	badStart := date(2026, time.August, 1)
	_, err = mem.Update(ctx, schoolID, season.ID, service.UpdateInput{StartDate: &badStart}, time.Now().UTC())
	require.ErrorIs(t, err, service.ErrDateOrder)
}

func TestDeleteFreesDates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, schoolID := newService()

	season, err := svc.Create(ctx, schoolID, service.CreateInput{
		Name:      "2025/26",
		StartDate: date(2025, time.September, 1),
		EndDate:   date(2026, time.July, 1),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, schoolID, season.ID))

	_, err = svc.GetByID(ctx, schoolID, season.ID)
	require.ErrorIs(t, err, service.ErrNotFound)

	_, err = svc.Create(ctx, schoolID, service.CreateInput{
		Name:      "Replacement",
		StartDate: date(2025, time.September, 1),
		EndDate:   date(2026, time.July, 1),
	})
	require.NoError(t, err)
}

func TestCrossSchoolScoping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, schoolID := newService()
	otherSchool := uuid.New()

	season, err := svc.Create(ctx, schoolID, service.CreateInput{
		Name:      "2025/26",
		StartDate: date(2025, time.September, 1),
		EndDate:   date(2026, time.July, 1),
	})
	require.NoError(t, err)

	// Every operation against another school's season reads as absence.
	_, err = svc.GetByID(ctx, otherSchool, season.ID)
	require.ErrorIs(t, err, service.ErrNotFound)
	_, err = svc.Activate(ctx, otherSchool, season.ID)
	require.ErrorIs(t, err, service.ErrNotFound)
	_, err = svc.Close(ctx, otherSchool, season.ID)
	require.ErrorIs(t, err, service.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, otherSchool, season.ID), service.ErrNotFound)
}
