// Package auth authenticates bearer credentials and exposes the resulting
// Principal to downstream middleware and handlers. Credentials are opaque
// secrets verified against the credential store on every request; there is no
// client-side claim parsing.
package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/enrolly/enrolly-backend/platform/go/apierror"
	platformlogging "github.com/enrolly/enrolly-backend/platform/go/logging"
)

// VerifyFunc validates an opaque bearer secret and returns the Principal
// bound to it. Implementations must reject expired and revoked credentials.
type VerifyFunc func(ctx context.Context, token string) (Principal, error)

// Bearer returns middleware that requires a valid bearer credential on every
// request it wraps. Missing, unknown, revoked or expired credentials are
// rejected with 401 before any business logic runs.
func Bearer(verify VerifyFunc) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.Bearer: verify func must not be nil")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, found := ExtractBearerToken(r)
			if !found || token == "" {
				apierror.Write(w, nil, apierror.Authentication("UNAUTHENTICATED", "missing bearer token"))
				return
			}

			principal, err := verify(r.Context(), token)
			if err != nil {
				if logger := platformlogging.FromRequest(r, nil); logger != nil {
					logger.Debug("credential verification failed", zap.Error(err))
				}
				apierror.Write(w, nil, apierror.Authentication("UNAUTHENTICATED", "invalid or expired credential"))
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractBearerToken pulls the credential secret from the Authorization header.
func ExtractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	const prefix = "Bearer "
	// Case-insensitive prefix match.
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(authHeader[len(prefix):]), true
}
