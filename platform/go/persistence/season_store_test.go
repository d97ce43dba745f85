package persistence

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	sqlassets "github.com/enrolly/enrolly-backend/database"
)

func startTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("enrolly"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() { ClosePool(pool) })

	for _, raw := range strings.Split(sqlassets.CoreSQL, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		_, err := pool.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	return pool
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestSeasonStoreInvariants(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping season store integration test in short mode")
	}

	ctx := context.Background()
	pool := startTestPool(t)

	schools, err := NewSchoolStore(ctx, pool)
	require.NoError(t, err)
	seasons, err := NewSeasonStore(ctx, pool)
	require.NoError(t, err)

	now := time.Now().UTC()
	school, err := schools.Create(ctx, SchoolRecord{
		SchoolID:  uuid.New(),
		Name:      "Greenfield Academy",
		Slug:      "greenfield",
		IsActive:  true,
		CreatedAt: now,
	})
	require.NoError(t, err)

	first, err := seasons.Create(ctx, CreateSeasonParams{
		SeasonID:  uuid.New(),
		SchoolID:  school.SchoolID,
		Name:      "2025/26 Winter",
		StartDate: date(2025, time.September, 1),
		EndDate:   date(2026, time.February, 1),
		IsActive:  true,
		Now:       now,
	})
	require.NoError(t, err)
	require.True(t, first.IsActive)

	// Overlapping interval is rejected.
	_, err = seasons.Create(ctx, CreateSeasonParams{
		SeasonID:  uuid.New(),
		SchoolID:  school.SchoolID,
		Name:      "Overlap",
		StartDate: date(2026, time.January, 15),
		EndDate:   date(2026, time.June, 30),
		IsActive:  false,
		Now:       now,
	})
	require.ErrorIs(t, err, ErrSeasonOverlap)

	// Adjacent interval (start == previous end) is allowed: intervals are half-open.
	second, err := seasons.Create(ctx, CreateSeasonParams{
		SeasonID:  uuid.New(),
		SchoolID:  school.SchoolID,
		Name:      "2026 Summer",
		StartDate: date(2026, time.February, 1),
		EndDate:   date(2026, time.July, 1),
		IsActive:  true,
		Now:       now,
	})
	require.NoError(t, err)

	// Creating the second season as active must have deactivated the first.
	active, err := seasons.GetActive(ctx, school.SchoolID)
	require.NoError(t, err)
	require.Equal(t, second.SeasonID, active.SeasonID)

	refetched, err := seasons.Get(ctx, school.SchoolID, first.SeasonID)
	require.NoError(t, err)
	require.False(t, refetched.IsActive)

	// Close is write-once.
	closedBy := uuid.New()
	closed, err := seasons.Close(ctx, school.SchoolID, second.SeasonID, closedBy, now)
	require.NoError(t, err)
	require.True(t, closed.IsClosed)
	require.False(t, closed.IsActive)
	require.NotNil(t, closed.ClosedAt)
	require.Equal(t, closedBy, *closed.ClosedBy)

	_, err = seasons.Close(ctx, school.SchoolID, second.SeasonID, closedBy, now)
	require.ErrorIs(t, err, ErrSeasonClosed)

	// Closed seasons reject patches and deletion.
	name := "renamed"
	_, err = seasons.Update(ctx, school.SchoolID, second.SeasonID, UpdateSeasonParams{Name: &name, Now: now})
	require.ErrorIs(t, err, ErrSeasonClosed)
	require.ErrorIs(t, seasons.SoftDelete(ctx, school.SchoolID, second.SeasonID, now), ErrSeasonClosed)

	// Open seasons soft-delete and vanish from reads.
	require.NoError(t, seasons.SoftDelete(ctx, school.SchoolID, first.SeasonID, now))
	_, err = seasons.Get(ctx, school.SchoolID, first.SeasonID)
	require.ErrorIs(t, err, ErrNotFound)

	// A deleted season no longer blocks overlapping dates.
	replacement, err := seasons.Create(ctx, CreateSeasonParams{
		SeasonID:  uuid.New(),
		SchoolID:  school.SchoolID,
		Name:      "Replacement",
		StartDate: date(2025, time.September, 1),
		EndDate:   date(2026, time.February, 1),
		IsActive:  false,
		Now:       now,
	})
	require.NoError(t, err)

	// The merged date order is enforced inside the update transaction, so a
	// patch validated against a since-changed row still cannot invert it.
	badStart := date(2026, time.March, 1)
	_, err = seasons.Update(ctx, school.SchoolID, replacement.SeasonID, UpdateSeasonParams{StartDate: &badStart, Now: now})
	require.ErrorIs(t, err, ErrSeasonDateOrder)

	// Cross-school lookups behave exactly like absence.
	other, err := schools.Create(ctx, SchoolRecord{
		SchoolID:  uuid.New(),
		Name:      "Lakeside College",
		Slug:      "lakeside",
		IsActive:  true,
		CreatedAt: now,
	})
	require.NoError(t, err)
	_, err = seasons.Get(ctx, other.SchoolID, second.SeasonID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAccessAndCredentialStores(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping access store integration test in short mode")
	}

	ctx := context.Background()
	pool := startTestPool(t)

	schools, err := NewSchoolStore(ctx, pool)
	require.NoError(t, err)
	seasons, err := NewSeasonStore(ctx, pool)
	require.NoError(t, err)
	users, err := NewUserStore(ctx, pool)
	require.NoError(t, err)
	access, err := NewAccessStore(ctx, pool)
	require.NoError(t, err)
	credentials, err := NewCredentialStore(ctx, pool)
	require.NoError(t, err)

	now := time.Now().UTC()
	school, err := schools.Create(ctx, SchoolRecord{
		SchoolID: uuid.New(), Name: "Greenfield Academy", Slug: "greenfield", IsActive: true, CreatedAt: now,
	})
	require.NoError(t, err)

	season, err := seasons.Create(ctx, CreateSeasonParams{
		SeasonID: uuid.New(), SchoolID: school.SchoolID, Name: "2025/26",
		StartDate: date(2025, time.September, 1), EndDate: date(2026, time.July, 1),
		IsActive: true, Now: now,
	})
	require.NoError(t, err)

	user, err := users.Create(ctx, UserRecord{
		UserID: uuid.New(), Email: "Manager@Example.com", FullName: "Morgan Reed",
		PasswordHash: "x", CreatedAt: now,
	})
	require.NoError(t, err)
	require.Equal(t, "manager@example.com", user.Email)

	// No role yet: RoleFor misses, permission set is empty, not an error.
	_, err = access.RoleFor(ctx, user.UserID, season.SeasonID)
	require.ErrorIs(t, err, ErrNotFound)
	perms, err := access.PermissionsFor(ctx, user.UserID, season.SeasonID)
	require.NoError(t, err)
	require.Empty(t, perms)

	roleID, err := access.EnsureRole(ctx, "manager", now)
	require.NoError(t, err)
	permID, err := access.EnsurePermission(ctx, "view schools", now)
	require.NoError(t, err)
	require.NoError(t, access.GrantPermission(ctx, roleID, permID))
	require.NoError(t, access.AssignRole(ctx, user.UserID, season.SeasonID, roleID, now))

	role, err := access.RoleFor(ctx, user.UserID, season.SeasonID)
	require.NoError(t, err)
	require.Equal(t, "manager", role)

	perms, err = access.PermissionsFor(ctx, user.UserID, season.SeasonID)
	require.NoError(t, err)
	require.Equal(t, []string{"view schools"}, perms)

	// Revocation is visible on the next read, no caching anywhere.
	require.NoError(t, access.RevokePermission(ctx, roleID, permID))
	perms, err = access.PermissionsFor(ctx, user.UserID, season.SeasonID)
	require.NoError(t, err)
	require.Empty(t, perms)

	// Credential round trip.
	rec, err := credentials.Insert(ctx, CredentialRecord{
		CredentialID: uuid.New(),
		UserID:       user.UserID,
		TokenHash:    strings.Repeat("a", 64),
		SchoolID:     &school.SchoolID,
		SeasonID:     &season.SeasonID,
		Finalized:    true,
		Abilities:    []string{"*"},
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
	})
	require.NoError(t, err)

	fetched, err := credentials.GetByTokenHash(ctx, rec.TokenHash)
	require.NoError(t, err)
	require.Equal(t, rec.CredentialID, fetched.CredentialID)
	require.True(t, fetched.Finalized)

	require.NoError(t, credentials.Revoke(ctx, rec.CredentialID, now))
	_, err = credentials.GetByTokenHash(ctx, rec.TokenHash)
	require.ErrorIs(t, err, ErrNotFound)
}
