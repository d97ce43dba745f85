// Package repo provides auth repositories for users and credentials: a
// Postgres-backed pair for production and in-memory ones for tests.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/enrolly/enrolly-backend/domains/auth/be/service"
	"github.com/enrolly/enrolly-backend/platform/go/persistence"
)

// PostgresUsers adapts persistence.UserStore to the auth service.
type PostgresUsers struct {
	store *persistence.UserStore
}

// NewPostgresUsers creates a Postgres-backed user repository.
func NewPostgresUsers(store *persistence.UserStore) (*PostgresUsers, error) {
	if store == nil {
		return nil, errors.New("user store is required")
	}
	return &PostgresUsers{store: store}, nil
}

func (r *PostgresUsers) GetByEmail(ctx context.Context, email string) (service.User, error) {
	rec, err := r.store.GetByEmail(ctx, email)
	if err != nil {
		return service.User{}, err
	}
	return toUser(rec), nil
}

func (r *PostgresUsers) Get(ctx context.Context, userID uuid.UUID) (service.User, error) {
	rec, err := r.store.Get(ctx, userID)
	if err != nil {
		return service.User{}, err
	}
	return toUser(rec), nil
}

// PostgresCredentials adapts persistence.CredentialStore to the auth service.
type PostgresCredentials struct {
	store *persistence.CredentialStore
}

// NewPostgresCredentials creates a Postgres-backed credential repository.
func NewPostgresCredentials(store *persistence.CredentialStore) (*PostgresCredentials, error) {
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	return &PostgresCredentials{store: store}, nil
}

func (r *PostgresCredentials) Insert(ctx context.Context, c service.Credential) error {
	_, err := r.store.Insert(ctx, persistence.CredentialRecord{
		CredentialID: c.ID,
		UserID:       c.UserID,
		TokenHash:    c.TokenHash,
		SchoolID:     c.SchoolID,
		SeasonID:     c.SeasonID,
		Finalized:    c.Finalized,
		Abilities:    c.Abilities,
		IssuedAt:     c.IssuedAt,
		ExpiresAt:    c.ExpiresAt,
	})
	return err
}

func (r *PostgresCredentials) GetByTokenHash(ctx context.Context, tokenHash string) (service.Credential, error) {
	rec, err := r.store.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return service.Credential{}, err
	}
	return service.Credential{
		ID:        rec.CredentialID,
		UserID:    rec.UserID,
		TokenHash: rec.TokenHash,
		SchoolID:  rec.SchoolID,
		SeasonID:  rec.SeasonID,
		Finalized: rec.Finalized,
		Abilities: rec.Abilities,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

func (r *PostgresCredentials) Revoke(ctx context.Context, credentialID uuid.UUID, now time.Time) error {
	return r.store.Revoke(ctx, credentialID, now)
}

func toUser(rec persistence.UserRecord) service.User {
	return service.User{
		ID:           rec.UserID,
		Email:        rec.Email,
		FullName:     rec.FullName,
		PasswordHash: rec.PasswordHash,
	}
}
