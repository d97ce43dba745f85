// Package repo provides access repositories: a Postgres-backed one for
// production and an in-memory one for tests.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/enrolly/enrolly-backend/domains/access/be/service"
	"github.com/enrolly/enrolly-backend/platform/go/persistence"
)

// Postgres adapts persistence.AccessStore to the access service.
type Postgres struct {
	store *persistence.AccessStore
}

// NewPostgres creates a Postgres-backed access repository.
func NewPostgres(store *persistence.AccessStore) (*Postgres, error) {
	if store == nil {
		return nil, errors.New("access store is required")
	}
	return &Postgres{store: store}, nil
}

func (r *Postgres) RoleFor(ctx context.Context, userID, seasonID uuid.UUID) (string, error) {
	role, err := r.store.RoleFor(ctx, userID, seasonID)
	if errors.Is(err, persistence.ErrNotFound) {
		return "", service.ErrNoRole
	}
	return role, err
}

func (r *Postgres) PermissionsFor(ctx context.Context, userID, seasonID uuid.UUID) ([]string, error) {
	return r.store.PermissionsFor(ctx, userID, seasonID)
}

func (r *Postgres) EnsureRole(ctx context.Context, name string, now time.Time) (uuid.UUID, error) {
	return r.store.EnsureRole(ctx, name, now)
}

func (r *Postgres) EnsurePermission(ctx context.Context, name string, now time.Time) (uuid.UUID, error) {
	return r.store.EnsurePermission(ctx, name, now)
}

func (r *Postgres) GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	return r.store.GrantPermission(ctx, roleID, permissionID)
}

func (r *Postgres) RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	return r.store.RevokePermission(ctx, roleID, permissionID)
}

func (r *Postgres) AssignRole(ctx context.Context, userID, seasonID, roleID uuid.UUID, now time.Time) error {
	return r.store.AssignRole(ctx, userID, seasonID, roleID, now)
}

func (r *Postgres) RevokeRole(ctx context.Context, userID, seasonID uuid.UUID) error {
	return r.store.RevokeRole(ctx, userID, seasonID)
}

func (r *Postgres) FindRole(ctx context.Context, name string) (uuid.UUID, error) {
	id, err := r.store.FindRole(ctx, name)
	if errors.Is(err, persistence.ErrNotFound) {
		return uuid.Nil, service.ErrRoleNotFound
	}
	return id, err
}

func (r *Postgres) FindPermission(ctx context.Context, name string) (uuid.UUID, error) {
	id, err := r.store.FindPermission(ctx, name)
	if errors.Is(err, persistence.ErrNotFound) {
		return uuid.Nil, service.ErrPermissionNotFound
	}
	return id, err
}
