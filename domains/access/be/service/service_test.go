package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/enrolly/enrolly-backend/domains/access/be/repo"
	"github.com/enrolly/enrolly-backend/domains/access/be/service"
)

func TestResolveWithoutRole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := service.New(repo.NewMemory())

	// No role is a normal state: empty role, empty permission set, no error.
	role, err := svc.RoleFor(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	require.Empty(t, role)

	permissions, err := svc.ResolvePermissions(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	require.Empty(t, permissions)
}

func TestRoleIsSeasonScoped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := service.New(repo.NewMemory())
	userID := uuid.New()
	winter := uuid.New()
	summer := uuid.New()

	require.NoError(t, svc.DefineRole(ctx, "manager", []string{"manage seasons", "view schools"}))
	require.NoError(t, svc.DefineRole(ctx, "viewer", []string{"view schools"}))
	require.NoError(t, svc.AssignRole(ctx, userID, winter, "manager"))
	require.NoError(t, svc.AssignRole(ctx, userID, summer, "viewer"))

	role, err := svc.RoleFor(ctx, userID, winter)
	require.NoError(t, err)
	require.Equal(t, "manager", role)

	// The same user resolves to a different permission set per season.
	permissions, err := svc.ResolvePermissions(ctx, userID, winter)
	require.NoError(t, err)
	require.Equal(t, []string{"manage seasons", "view schools"}, permissions)

	permissions, err = svc.ResolvePermissions(ctx, userID, summer)
	require.NoError(t, err)
	require.Equal(t, []string{"view schools"}, permissions)
}

func TestRevocationIsLive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := service.New(repo.NewMemory())
	userID := uuid.New()
	seasonID := uuid.New()

	require.NoError(t, svc.DefineRole(ctx, "manager", []string{"manage seasons"}))
	require.NoError(t, svc.AssignRole(ctx, userID, seasonID, "manager"))

	permissions, err := svc.ResolvePermissions(ctx, userID, seasonID)
	require.NoError(t, err)
	require.Contains(t, permissions, "manage seasons")

	// Revoking from the role is visible on the very next resolution.
	require.NoError(t, svc.RevokePermission(ctx, "manager", "manage seasons"))
	permissions, err = svc.ResolvePermissions(ctx, userID, seasonID)
	require.NoError(t, err)
	require.Empty(t, permissions)

	// Regranting restores it just as immediately.
	require.NoError(t, svc.GrantPermission(ctx, "manager", "manage seasons"))
	permissions, err = svc.ResolvePermissions(ctx, userID, seasonID)
	require.NoError(t, err)
	require.Contains(t, permissions, "manage seasons")
}

func TestAssignReplacesAndRevokeClears(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := service.New(repo.NewMemory())
	userID := uuid.New()
	seasonID := uuid.New()

	require.NoError(t, svc.DefineRole(ctx, "manager", []string{"manage seasons"}))
	require.NoError(t, svc.DefineRole(ctx, "viewer", []string{"view schools"}))

	require.NoError(t, svc.AssignRole(ctx, userID, seasonID, "manager"))
	require.NoError(t, svc.AssignRole(ctx, userID, seasonID, "viewer"))

	// A user holds a single role per season; the second assignment replaced
	// the first.
	role, err := svc.RoleFor(ctx, userID, seasonID)
	require.NoError(t, err)
	require.Equal(t, "viewer", role)

	require.NoError(t, svc.RevokeRole(ctx, userID, seasonID))
	role, err = svc.RoleFor(ctx, userID, seasonID)
	require.NoError(t, err)
	require.Empty(t, role)

	require.ErrorIs(t, svc.AssignRole(ctx, userID, seasonID, "missing"), service.ErrRoleNotFound)
}
