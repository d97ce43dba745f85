package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Principal is the authenticated credential attached to the request context
// by the bearer middleware. SchoolID/SeasonID are nil while the credential is
// an intermediate one produced by the selection flow; Finalized reports
// whether the binding is complete.
type Principal struct {
	CredentialID uuid.UUID
	UserID       uuid.UUID
	Email        string
	SchoolID     *uuid.UUID
	SeasonID     *uuid.UUID
	Finalized    bool
	Abilities    []string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

type ctxKey struct{}

// WithPrincipal returns a derived context carrying the Principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFromContext extracts the Principal and a boolean indicating presence.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
