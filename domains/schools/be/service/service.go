// Package service exposes the school registry. Schools are tenants; every
// other domain reaches them through this service rather than the store.
package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned for absent schools and for schools outside the
// caller's reach; the two are indistinguishable.
var ErrNotFound = errors.New("school not found")

// School represents a tenant.
type School struct {
	ID       uuid.UUID
	Name     string
	Slug     string
	IsActive bool
}

// Repository abstracts persistence.
type Repository interface {
	Get(ctx context.Context, schoolID uuid.UUID) (School, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]School, error)
}

// Service provides school lookups.
type Service struct {
	repo Repository
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("schools repo is required")
	}
	return &Service{repo: repo}
}

// Get returns a school by id.
func (s *Service) Get(ctx context.Context, schoolID uuid.UUID) (School, error) {
	return s.repo.Get(ctx, schoolID)
}

// ListForUser returns the active schools in which the user holds at least one
// season role. This is the list the selection flow offers after login.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]School, error) {
	return s.repo.ListForUser(ctx, userID)
}
