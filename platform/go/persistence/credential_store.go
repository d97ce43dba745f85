package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialRecord represents a stored access credential. Only the SHA-256
// hash of the secret is persisted; the raw token is returned to the client
// once at issuance. SchoolID/SeasonID are null for intermediate credentials
// produced by the selection flow; Finalized marks a complete binding. The
// binding columns are written once at insert and never updated.
type CredentialRecord struct {
	CredentialID uuid.UUID  `db:"credential_id"`
	UserID       uuid.UUID  `db:"user_id"`
	TokenHash    string     `db:"token_hash"`
	SchoolID     *uuid.UUID `db:"school_id"`
	SeasonID     *uuid.UUID `db:"season_id"`
	Finalized    bool       `db:"finalized"`
	Abilities    []string   `db:"abilities"`
	IssuedAt     time.Time  `db:"issued_at"`
	ExpiresAt    time.Time  `db:"expires_at"`
	RevokedAt    *time.Time `db:"revoked_at"`
}

// CredentialStore provides access to the credentials table.
type CredentialStore struct {
	pool *pgxpool.Pool
}

// NewCredentialStore creates a store; assumes migrations already created the table.
func NewCredentialStore(ctx context.Context, pool *pgxpool.Pool) (*CredentialStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &CredentialStore{pool: pool}, nil
}

const credentialColumns = `credential_id, user_id, token_hash, school_id, season_id,
        finalized, abilities, issued_at, expires_at, revoked_at`

// Insert stores a new credential.
func (s *CredentialStore) Insert(ctx context.Context, rec CredentialRecord) (CredentialRecord, error) {
	row := s.pool.QueryRow(ctx, `
        INSERT INTO credentials (
            credential_id, user_id, token_hash, school_id, season_id,
            finalized, abilities, issued_at, expires_at, revoked_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULL)
        RETURNING `+credentialColumns,
		rec.CredentialID, rec.UserID, rec.TokenHash, rec.SchoolID, rec.SeasonID,
		rec.Finalized, rec.Abilities, rec.IssuedAt, rec.ExpiresAt,
	)
	return scanCredentialRecord(row)
}

// GetByTokenHash fetches a credential by secret hash. Revoked credentials are
// not returned.
func (s *CredentialStore) GetByTokenHash(ctx context.Context, tokenHash string) (CredentialRecord, error) {
	return scanCredentialRecord(s.pool.QueryRow(ctx, `
        SELECT `+credentialColumns+` FROM credentials
        WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash))
}

// Revoke marks a credential unusable. Used when the selection flow replaces
// an intermediate credential with its finalized successor.
func (s *CredentialStore) Revoke(ctx context.Context, credentialID uuid.UUID, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE credentials SET revoked_at = $2
        WHERE credential_id = $1 AND revoked_at IS NULL`,
		credentialID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCredentialRecord(row rowScanner) (CredentialRecord, error) {
	var rec CredentialRecord
	err := row.Scan(
		&rec.CredentialID, &rec.UserID, &rec.TokenHash, &rec.SchoolID, &rec.SeasonID,
		&rec.Finalized, &rec.Abilities, &rec.IssuedAt, &rec.ExpiresAt, &rec.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return CredentialRecord{}, ErrNotFound
	}
	if err != nil {
		return CredentialRecord{}, err
	}
	return rec, nil
}
