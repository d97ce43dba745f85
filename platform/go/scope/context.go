// Package scope carries the season-scoped authorization context of a request:
// the credential's immutable tenant+period binding plus the permission set
// resolved live for this request.
package scope

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Context is the binding burned into a credential at issuance. It identifies
// exactly one school (tenant) and one season (operating period) and is never
// rebound for the lifetime of the credential.
type Context struct {
	SchoolID  uuid.UUID
	SeasonID  uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Access is the per-request authorization view produced by the enforcement
// gate: the credential binding plus role and permissions resolved fresh for
// this request. It must not outlive the request that produced it.
type Access struct {
	UserID      uuid.UUID
	Role        string
	Context     Context
	Permissions []string
}

// Has reports whether the resolved permission set contains the given name.
func (a Access) Has(permission string) bool {
	for _, p := range a.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

type ctxKey struct{}

// WithAccess returns a derived context carrying the request Access.
func WithAccess(ctx context.Context, access Access) context.Context {
	return context.WithValue(ctx, ctxKey{}, access)
}

// FromContext extracts the Access and a boolean indicating presence.
func FromContext(ctx context.Context) (Access, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return Access{}, false
	}
	access, ok := v.(Access)
	return access, ok
}
