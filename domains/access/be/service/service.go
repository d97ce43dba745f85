// Package service resolves roles and permissions. A user holds at most one
// role per season, and a role's permission set is global; what a permission
// lets a user touch is always bounded by the season the role lives in.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by the service layer.
var (
	ErrNoRole             = errors.New("user holds no role in the season")
	ErrRoleNotFound       = errors.New("role not found")
	ErrPermissionNotFound = errors.New("permission not found")
)

// Repository abstracts the role/permission tables.
type Repository interface {
	RoleFor(ctx context.Context, userID, seasonID uuid.UUID) (string, error)
	PermissionsFor(ctx context.Context, userID, seasonID uuid.UUID) ([]string, error)
	EnsureRole(ctx context.Context, name string, now time.Time) (uuid.UUID, error)
	EnsurePermission(ctx context.Context, name string, now time.Time) (uuid.UUID, error)
	GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	AssignRole(ctx context.Context, userID, seasonID, roleID uuid.UUID, now time.Time) error
	RevokeRole(ctx context.Context, userID, seasonID uuid.UUID) error
	FindRole(ctx context.Context, name string) (uuid.UUID, error)
	FindPermission(ctx context.Context, name string) (uuid.UUID, error)
}

// Service resolves and administers season-scoped access. It satisfies the
// scope middleware's PermissionResolver.
type Service struct {
	repo Repository
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("access repo is required")
	}
	return &Service{repo: repo}
}

// RoleFor returns the user's role name in the season, or "" when the user
// holds none. Holding no role is a normal state, not an error: the request
// proceeds and fails only at permission checks.
func (s *Service) RoleFor(ctx context.Context, userID, seasonID uuid.UUID) (string, error) {
	role, err := s.repo.RoleFor(ctx, userID, seasonID)
	if errors.Is(err, ErrNoRole) {
		return "", nil
	}
	return role, err
}

// ResolvePermissions returns the user's effective permission names in the
// season. The read is live on every call; a revocation is visible on the very
// next request without reissuing any credential.
func (s *Service) ResolvePermissions(ctx context.Context, userID, seasonID uuid.UUID) ([]string, error) {
	return s.repo.PermissionsFor(ctx, userID, seasonID)
}

// DefineRole creates the role if needed and grants it the named permissions,
// creating those too. Idempotent; used by seeding.
func (s *Service) DefineRole(ctx context.Context, name string, permissions []string) error {
	now := time.Now().UTC()
	roleID, err := s.repo.EnsureRole(ctx, name, now)
	if err != nil {
		return fmt.Errorf("ensuring role %q: %w", name, err)
	}
	for _, permission := range permissions {
		permissionID, err := s.repo.EnsurePermission(ctx, permission, now)
		if err != nil {
			return fmt.Errorf("ensuring permission %q: %w", permission, err)
		}
		if err := s.repo.GrantPermission(ctx, roleID, permissionID); err != nil {
			return fmt.Errorf("granting %q to %q: %w", permission, name, err)
		}
	}
	return nil
}

// AssignRole gives the user the named role in the season, replacing any
// previous assignment there.
func (s *Service) AssignRole(ctx context.Context, userID, seasonID uuid.UUID, roleName string) error {
	roleID, err := s.repo.FindRole(ctx, roleName)
	if err != nil {
		return err
	}
	return s.repo.AssignRole(ctx, userID, seasonID, roleID, time.Now().UTC())
}

// RevokeRole removes the user's role in the season.
func (s *Service) RevokeRole(ctx context.Context, userID, seasonID uuid.UUID) error {
	return s.repo.RevokeRole(ctx, userID, seasonID)
}

// GrantPermission adds a permission to a role, creating the permission if it
// does not exist yet.
func (s *Service) GrantPermission(ctx context.Context, roleName, permissionName string) error {
	roleID, err := s.repo.FindRole(ctx, roleName)
	if err != nil {
		return err
	}
	permissionID, err := s.repo.EnsurePermission(ctx, permissionName, time.Now().UTC())
	if err != nil {
		return err
	}
	return s.repo.GrantPermission(ctx, roleID, permissionID)
}

// RevokePermission removes a permission from a role. Every user holding the
// role loses the permission on their next request.
func (s *Service) RevokePermission(ctx context.Context, roleName, permissionName string) error {
	roleID, err := s.repo.FindRole(ctx, roleName)
	if err != nil {
		return err
	}
	permissionID, err := s.repo.FindPermission(ctx, permissionName)
	if err != nil {
		return err
	}
	return s.repo.RevokePermission(ctx, roleID, permissionID)
}
