package scope

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/enrolly/enrolly-backend/platform/go/apierror"
	platformauth "github.com/enrolly/enrolly-backend/platform/go/auth"
	platformlogging "github.com/enrolly/enrolly-backend/platform/go/logging"
)

// PermissionResolver resolves the live role/permission state for a
// (user, season) pair. It is invoked on every request passing the gate;
// results are never cached across requests.
type PermissionResolver interface {
	RoleFor(ctx context.Context, userID, seasonID uuid.UUID) (string, error)
	ResolvePermissions(ctx context.Context, userID, seasonID uuid.UUID) ([]string, error)
}

// RequireSeasonScope turns an authenticated Principal into a fully bound
// Access. Credentials without a finalized school+season binding are rejected:
// "authenticated but tenant-less" is not a valid state on protected routes.
// Permissions are re-resolved here on every request so revocations take
// effect without reissuing the credential.
func RequireSeasonScope(resolver PermissionResolver) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("scope middleware: resolver is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := platformauth.PrincipalFromContext(r.Context())
			if !ok {
				apierror.Write(w, nil, apierror.Authentication("UNAUTHENTICATED", "missing credential"))
				return
			}
			if !principal.Finalized || principal.SchoolID == nil || principal.SeasonID == nil {
				apierror.Write(w, nil, apierror.Authentication("CONTEXT_REQUIRED", "credential is not bound to a school and season"))
				return
			}

			role, err := resolver.RoleFor(r.Context(), principal.UserID, *principal.SeasonID)
			if err != nil {
				apierror.Write(w, platformlogging.FromRequest(r, nil), err)
				return
			}
			permissions, err := resolver.ResolvePermissions(r.Context(), principal.UserID, *principal.SeasonID)
			if err != nil {
				apierror.Write(w, platformlogging.FromRequest(r, nil), err)
				return
			}

			access := Access{
				UserID: principal.UserID,
				Role:   role,
				Context: Context{
					SchoolID:  *principal.SchoolID,
					SeasonID:  *principal.SeasonID,
					IssuedAt:  principal.IssuedAt,
					ExpiresAt: principal.ExpiresAt,
				},
				Permissions: permissions,
			}

			ctx := WithAccess(r.Context(), access)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission gates an endpoint on a permission name resolved by
// RequireSeasonScope. Absence yields 403; the caller is authenticated and
// scoped, just unprivileged.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := FromContext(r.Context())
			if !ok {
				apierror.Write(w, nil, apierror.Authentication("CONTEXT_REQUIRED", "credential is not bound to a school and season"))
				return
			}
			if !access.Has(permission) {
				apierror.Write(w, nil, apierror.Authorization("PERMISSION_DENIED", "missing required permission"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// EffectiveSeason resolves the season a request operates on. An absent
// season_id query parameter defaults to the credential's bound season; an
// explicit value is accepted only when it matches the binding, so the
// parameter can never widen the credential's scope.
func EffectiveSeason(access Access, requested string) (uuid.UUID, error) {
	if requested == "" {
		return access.Context.SeasonID, nil
	}
	id, err := uuid.Parse(requested)
	if err != nil {
		return uuid.Nil, apierror.Validation("VALIDATION_FAILED", "invalid season_id", map[string][]string{
			"season_id": {"must be a valid UUID"},
		})
	}
	if id != access.Context.SeasonID {
		return uuid.Nil, apierror.Validation("SEASON_SCOPE_MISMATCH", "season_id does not match the credential's bound season", map[string][]string{
			"season_id": {"does not match the bound season"},
		})
	}
	return id, nil
}
