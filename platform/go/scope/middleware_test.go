package scope_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/enrolly/enrolly-backend/platform/go/apierror"
	platformauth "github.com/enrolly/enrolly-backend/platform/go/auth"
	"github.com/enrolly/enrolly-backend/platform/go/scope"
)

type staticResolver struct {
	role        string
	permissions []string
}

func (r staticResolver) RoleFor(context.Context, uuid.UUID, uuid.UUID) (string, error) {
	return r.role, nil
}

func (r staticResolver) ResolvePermissions(context.Context, uuid.UUID, uuid.UUID) ([]string, error) {
	return r.permissions, nil
}

func finalizedPrincipal() platformauth.Principal {
	schoolID := uuid.New()
	seasonID := uuid.New()
	return platformauth.Principal{
		CredentialID: uuid.New(),
		UserID:       uuid.New(),
		Email:        "morgan@example.com",
		SchoolID:     &schoolID,
		SeasonID:     &seasonID,
		Finalized:    true,
		IssuedAt:     time.Now().UTC(),
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
	}
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, principal *platformauth.Principal) *httptest.ResponseRecorder {
	t.Helper()

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if principal != nil {
		req = req.WithContext(platformauth.WithPrincipal(req.Context(), *principal))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		ErrorCode string `json:"error_code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.ErrorCode
}

func TestRequireSeasonScope(t *testing.T) {
	t.Parallel()
	gate := scope.RequireSeasonScope(staticResolver{role: "manager", permissions: []string{"view schools"}})

	rec := serve(t, gate, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "UNAUTHENTICATED", errorCode(t, rec))

	// Intermediate credentials are authenticated but tenant-less; the gate
	// refuses them.
	intermediate := finalizedPrincipal()
	intermediate.Finalized = false
	intermediate.SchoolID = nil
	intermediate.SeasonID = nil
	rec = serve(t, gate, &intermediate)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "CONTEXT_REQUIRED", errorCode(t, rec))

	principal := finalizedPrincipal()
	inner := func(next http.Handler) http.Handler {
		return gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := scope.FromContext(r.Context())
			require.True(t, ok)
			require.Equal(t, principal.UserID, access.UserID)
			require.Equal(t, *principal.SchoolID, access.Context.SchoolID)
			require.Equal(t, "manager", access.Role)
			require.True(t, access.Has("view schools"))
			require.False(t, access.Has("manage seasons"))
			next.ServeHTTP(w, r)
		}))
	}
	rec = serve(t, inner, &principal)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequirePermission(t *testing.T) {
	t.Parallel()
	gate := scope.RequireSeasonScope(staticResolver{role: "viewer", permissions: []string{"view schools"}})
	principal := finalizedPrincipal()

	denied := func(next http.Handler) http.Handler {
		return gate(scope.RequirePermission("manage seasons")(next))
	}
	rec := serve(t, denied, &principal)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "PERMISSION_DENIED", errorCode(t, rec))

	granted := func(next http.Handler) http.Handler {
		return gate(scope.RequirePermission("view schools")(next))
	}
	rec = serve(t, granted, &principal)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEffectiveSeason(t *testing.T) {
	t.Parallel()
	access := scope.Access{
		UserID: uuid.New(),
		Context: scope.Context{
			SchoolID: uuid.New(),
			SeasonID: uuid.New(),
		},
	}

	// Absent parameter defaults to the credential's binding.
	seasonID, err := scope.EffectiveSeason(access, "")
	require.NoError(t, err)
	require.Equal(t, access.Context.SeasonID, seasonID)

	// A matching explicit value is accepted.
	seasonID, err = scope.EffectiveSeason(access, access.Context.SeasonID.String())
	require.NoError(t, err)
	require.Equal(t, access.Context.SeasonID, seasonID)

	// A mismatch can never widen the credential's scope.
	_, err = scope.EffectiveSeason(access, uuid.NewString())
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "SEASON_SCOPE_MISMATCH", apiErr.Code)

	_, err = scope.EffectiveSeason(access, "not-a-uuid")
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "VALIDATION_FAILED", apiErr.Code)
}
