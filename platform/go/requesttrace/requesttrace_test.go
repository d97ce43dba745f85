package requesttrace

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestIntoContextAndFromContext(t *testing.T) {
	audit := ForUser(uuid.New(), "req-abc")

	ctx := IntoContext(context.Background(), audit)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, audit, got)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)
}

func TestFromContextOrAnonymous(t *testing.T) {
	audit := FromContextOrAnonymous(context.Background())
	require.Equal(t, ActorKindAnonymous, audit.ActorKind)
	require.Nil(t, audit.UserID)

	userID := uuid.New()
	ctx := IntoContext(context.Background(), ForUser(userID, "req-1"))
	audit = FromContextOrAnonymous(ctx)
	require.Equal(t, ActorKindUser, audit.ActorKind)
	require.Equal(t, userID, *audit.UserID)
}

func TestForUser(t *testing.T) {
	userID := uuid.New()
	audit := ForUser(userID, "req-xyz")
	require.Equal(t, ActorKindUser, audit.ActorKind)
	require.NotNil(t, audit.UserID)
	require.Equal(t, userID, *audit.UserID)
	require.Equal(t, "req-xyz", audit.RequestID)
}

func TestAnonymous(t *testing.T) {
	audit := Anonymous("req-anon")
	require.Equal(t, ActorKindAnonymous, audit.ActorKind)
	require.Nil(t, audit.UserID)
	require.Equal(t, "req-anon", audit.RequestID)
}

func TestSystem(t *testing.T) {
	audit := System("req-sys")
	require.Equal(t, ActorKindSystem, audit.ActorKind)
	require.Nil(t, audit.UserID)
}
