package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	platformauth "github.com/enrolly/enrolly-backend/platform/go/auth"
	"github.com/enrolly/enrolly-backend/platform/go/requesttrace"
)

// RequestTrace populates the context with request-scoped AuditInfo so
// services can stamp actor fields. It must run after the bearer middleware so
// the Principal is available when present.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, _ := r.Context().Value(middleware.RequestIDKey).(string)

		audit := requesttrace.Anonymous(requestID)
		if principal, ok := platformauth.PrincipalFromContext(r.Context()); ok {
			audit = requesttrace.ForUser(principal.UserID, requestID)
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
