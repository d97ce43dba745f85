package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRecord represents a user row. PasswordHash is a bcrypt digest.
type UserRecord struct {
	UserID       uuid.UUID `db:"user_id"`
	Email        string    `db:"email"`
	FullName     string    `db:"full_name"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

// UserStore provides access to the users table.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a store; assumes migrations already created the table.
func NewUserStore(ctx context.Context, pool *pgxpool.Pool) (*UserStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &UserStore{pool: pool}, nil
}

const userColumns = `user_id, email, full_name, password_hash, created_at`

// Create inserts a user.
func (s *UserStore) Create(ctx context.Context, rec UserRecord) (UserRecord, error) {
	row := s.pool.QueryRow(ctx, `
        INSERT INTO users (user_id, email, full_name, password_hash, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING `+userColumns,
		rec.UserID, strings.ToLower(rec.Email), rec.FullName, rec.PasswordHash, rec.CreatedAt,
	)
	out, err := scanUserRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return UserRecord{}, ErrDuplicate
		}
		return UserRecord{}, err
	}
	return out, nil
}

// GetByEmail fetches a user by email (case-insensitive).
func (s *UserStore) GetByEmail(ctx context.Context, email string) (UserRecord, error) {
	return scanUserRecord(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
}

// Get fetches a user by id.
func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (UserRecord, error) {
	return scanUserRecord(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, id))
}

func scanUserRecord(row rowScanner) (UserRecord, error) {
	var rec UserRecord
	err := row.Scan(&rec.UserID, &rec.Email, &rec.FullName, &rec.PasswordHash, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}
	if err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}
