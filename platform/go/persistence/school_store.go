package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SchoolRecord represents a school (tenant) row.
type SchoolRecord struct {
	SchoolID  uuid.UUID `db:"school_id"`
	Name      string    `db:"name"`
	Slug      string    `db:"slug"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

// SchoolStore provides access to the schools table.
type SchoolStore struct {
	pool *pgxpool.Pool
}

// NewSchoolStore creates a store; assumes migrations already created the table.
func NewSchoolStore(ctx context.Context, pool *pgxpool.Pool) (*SchoolStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SchoolStore{pool: pool}, nil
}

const schoolColumns = `school_id, name, slug, is_active, created_at`

// Create inserts a school.
func (s *SchoolStore) Create(ctx context.Context, rec SchoolRecord) (SchoolRecord, error) {
	row := s.pool.QueryRow(ctx, `
        INSERT INTO schools (school_id, name, slug, is_active, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING `+schoolColumns,
		rec.SchoolID, rec.Name, rec.Slug, rec.IsActive, rec.CreatedAt,
	)
	out, err := scanSchoolRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return SchoolRecord{}, ErrDuplicate
		}
		return SchoolRecord{}, err
	}
	return out, nil
}

// Get fetches a school by id.
func (s *SchoolStore) Get(ctx context.Context, id uuid.UUID) (SchoolRecord, error) {
	return scanSchoolRecord(s.pool.QueryRow(ctx,
		`SELECT `+schoolColumns+` FROM schools WHERE school_id = $1`, id))
}

// GetBySlug fetches a school by slug.
func (s *SchoolStore) GetBySlug(ctx context.Context, slug string) (SchoolRecord, error) {
	return scanSchoolRecord(s.pool.QueryRow(ctx,
		`SELECT `+schoolColumns+` FROM schools WHERE slug = $1`, slug))
}

// ListForUser returns the active schools in which the user holds at least one
// season role, ordered by name.
func (s *SchoolStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]SchoolRecord, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT DISTINCT sc.school_id, sc.name, sc.slug, sc.is_active, sc.created_at
        FROM schools sc
        JOIN seasons se ON se.school_id = sc.school_id
        JOIN user_season_roles usr ON usr.season_id = se.season_id
        WHERE usr.user_id = $1 AND sc.is_active = TRUE AND se.deleted_at IS NULL
        ORDER BY sc.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SchoolRecord
	for rows.Next() {
		rec, err := scanSchoolRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanSchoolRecord(row rowScanner) (SchoolRecord, error) {
	var rec SchoolRecord
	err := row.Scan(&rec.SchoolID, &rec.Name, &rec.Slug, &rec.IsActive, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SchoolRecord{}, ErrNotFound
	}
	if err != nil {
		return SchoolRecord{}, err
	}
	return rec, nil
}
