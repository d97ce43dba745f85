package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SeasonRecord represents a season row. Dates form a half-open interval
// [StartDate, EndDate).
type SeasonRecord struct {
	SeasonID  uuid.UUID  `db:"season_id"`
	SchoolID  uuid.UUID  `db:"school_id"`
	Name      string     `db:"name"`
	StartDate time.Time  `db:"start_date"`
	EndDate   time.Time  `db:"end_date"`
	IsActive  bool       `db:"is_active"`
	IsClosed  bool       `db:"is_closed"`
	ClosedAt  *time.Time `db:"closed_at"`
	ClosedBy  *uuid.UUID `db:"closed_by"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

// CreateSeasonParams carries the fields for inserting a season.
type CreateSeasonParams struct {
	SeasonID  uuid.UUID
	SchoolID  uuid.UUID
	Name      string
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
	Now       time.Time
}

// UpdateSeasonParams carries the patchable season fields. Nil pointers leave
// the current value untouched.
type UpdateSeasonParams struct {
	Name      *string
	StartDate *time.Time
	EndDate   *time.Time
	IsActive  *bool
	Now       time.Time
}

// SeasonStore provides access to the seasons table. Every read and write is
// scoped by school id so a season of another school behaves exactly like a
// nonexistent one. Multi-row invariants (single active season, overlap-free
// intervals) are enforced inside one transaction per write, serialized per
// school by locking the owning school row.
type SeasonStore struct {
	pool *pgxpool.Pool
}

// NewSeasonStore creates a store; assumes migrations already created the table.
func NewSeasonStore(ctx context.Context, pool *pgxpool.Pool) (*SeasonStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SeasonStore{pool: pool}, nil
}

const seasonColumns = `season_id, school_id, name, start_date, end_date, is_active,
        is_closed, closed_at, closed_by, created_at, updated_at, deleted_at`

// Create inserts a season after checking the overlap invariant. When
// IsActive is set, the previously active season of the school is deactivated
// in the same transaction so readers never observe zero or two active rows.
func (s *SeasonStore) Create(ctx context.Context, p CreateSeasonParams) (SeasonRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SeasonRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockSchool(ctx, tx, p.SchoolID); err != nil {
		return SeasonRecord{}, err
	}

	overlaps, err := seasonOverlapExists(ctx, tx, p.SchoolID, p.StartDate, p.EndDate, uuid.Nil)
	if err != nil {
		return SeasonRecord{}, err
	}
	if overlaps {
		return SeasonRecord{}, ErrSeasonOverlap
	}

	if p.IsActive {
		if err := deactivateSiblings(ctx, tx, p.SchoolID, p.Now); err != nil {
			return SeasonRecord{}, err
		}
	}

	row := tx.QueryRow(ctx, `
        INSERT INTO seasons (
            season_id, school_id, name, start_date, end_date, is_active,
            is_closed, closed_at, closed_by, created_at, updated_at, deleted_at
        ) VALUES ($1,$2,$3,$4,$5,$6,FALSE,NULL,NULL,$7,$7,NULL)
        RETURNING `+seasonColumns,
		p.SeasonID, p.SchoolID, p.Name, p.StartDate, p.EndDate, p.IsActive, p.Now,
	)

	rec, err := scanSeasonRecord(row)
	if err != nil {
		return SeasonRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return SeasonRecord{}, err
	}
	return rec, nil
}

// Update patches a season. Closed seasons reject every patch; date changes
// re-run the overlap check excluding the season itself.
func (s *SeasonStore) Update(ctx context.Context, schoolID, seasonID uuid.UUID, p UpdateSeasonParams) (SeasonRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SeasonRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockSchool(ctx, tx, schoolID); err != nil {
		return SeasonRecord{}, err
	}

	current, err := scanSeasonRecord(tx.QueryRow(ctx, `
        SELECT `+seasonColumns+` FROM seasons
        WHERE season_id = $1 AND school_id = $2 AND deleted_at IS NULL
        FOR UPDATE`, seasonID, schoolID))
	if err != nil {
		return SeasonRecord{}, err
	}
	if current.IsClosed {
		return SeasonRecord{}, ErrSeasonClosed
	}

	next := current
	if p.Name != nil {
		next.Name = *p.Name
	}
	if p.StartDate != nil {
		next.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		next.EndDate = *p.EndDate
	}
	if p.IsActive != nil {
		next.IsActive = *p.IsActive
	}

	if p.StartDate != nil || p.EndDate != nil {
		// Re-check the order on the merged dates inside the transaction: a
		// concurrent date change can invalidate a pre-check the caller ran
		// against a stale row.
		if !next.StartDate.Before(next.EndDate) {
			return SeasonRecord{}, ErrSeasonDateOrder
		}
		overlaps, err := seasonOverlapExists(ctx, tx, schoolID, next.StartDate, next.EndDate, seasonID)
		if err != nil {
			return SeasonRecord{}, err
		}
		if overlaps {
			return SeasonRecord{}, ErrSeasonOverlap
		}
	}

	if p.IsActive != nil && *p.IsActive && !current.IsActive {
		if err := deactivateSiblings(ctx, tx, schoolID, p.Now); err != nil {
			return SeasonRecord{}, err
		}
	}

	row := tx.QueryRow(ctx, `
        UPDATE seasons
        SET name = $3, start_date = $4, end_date = $5, is_active = $6, updated_at = $7
        WHERE season_id = $1 AND school_id = $2 AND deleted_at IS NULL
        RETURNING `+seasonColumns,
		seasonID, schoolID, next.Name, next.StartDate, next.EndDate, next.IsActive, p.Now,
	)

	rec, err := scanSeasonRecord(row)
	if err != nil {
		return SeasonRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return SeasonRecord{}, err
	}
	return rec, nil
}

// Activate marks the season active and deactivates any active sibling within
// the same transaction.
func (s *SeasonStore) Activate(ctx context.Context, schoolID, seasonID uuid.UUID, now time.Time) (SeasonRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SeasonRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockSchool(ctx, tx, schoolID); err != nil {
		return SeasonRecord{}, err
	}

	current, err := scanSeasonRecord(tx.QueryRow(ctx, `
        SELECT `+seasonColumns+` FROM seasons
        WHERE season_id = $1 AND school_id = $2 AND deleted_at IS NULL
        FOR UPDATE`, seasonID, schoolID))
	if err != nil {
		return SeasonRecord{}, err
	}
	if current.IsClosed {
		return SeasonRecord{}, ErrSeasonClosed
	}

	if err := deactivateSiblings(ctx, tx, schoolID, now); err != nil {
		return SeasonRecord{}, err
	}

	row := tx.QueryRow(ctx, `
        UPDATE seasons SET is_active = TRUE, updated_at = $3
        WHERE season_id = $1 AND school_id = $2 AND deleted_at IS NULL
        RETURNING `+seasonColumns,
		seasonID, schoolID, now,
	)

	rec, err := scanSeasonRecord(row)
	if err != nil {
		return SeasonRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return SeasonRecord{}, err
	}
	return rec, nil
}

// Close transitions the season to its terminal closed state. The guard
// `is_closed = FALSE` in the update makes the transition write-once: a
// concurrent or repeated close finds zero rows and reports ErrSeasonClosed.
func (s *SeasonStore) Close(ctx context.Context, schoolID, seasonID, closedBy uuid.UUID, now time.Time) (SeasonRecord, error) {
	row := s.pool.QueryRow(ctx, `
        UPDATE seasons
        SET is_closed = TRUE, is_active = FALSE, closed_at = $3, closed_by = $4, updated_at = $3
        WHERE season_id = $1 AND school_id = $2 AND deleted_at IS NULL AND is_closed = FALSE
        RETURNING `+seasonColumns,
		seasonID, schoolID, now, closedBy,
	)

	rec, err := scanSeasonRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return SeasonRecord{}, err
	}

	// Distinguish "already closed" from "absent or cross-school".
	if _, getErr := s.Get(ctx, schoolID, seasonID); getErr == nil {
		return SeasonRecord{}, ErrSeasonClosed
	}
	return SeasonRecord{}, ErrNotFound
}

// SoftDelete hides an open season from subsequent reads. Closed seasons carry
// committed history and are never removable.
func (s *SeasonStore) SoftDelete(ctx context.Context, schoolID, seasonID uuid.UUID, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE seasons SET deleted_at = $3, is_active = FALSE, updated_at = $3
        WHERE season_id = $1 AND school_id = $2 AND deleted_at IS NULL AND is_closed = FALSE`,
		seasonID, schoolID, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, getErr := s.Get(ctx, schoolID, seasonID); getErr == nil {
		return ErrSeasonClosed
	}
	return ErrNotFound
}

// Get fetches a non-deleted season scoped to the school.
func (s *SeasonStore) Get(ctx context.Context, schoolID, seasonID uuid.UUID) (SeasonRecord, error) {
	return scanSeasonRecord(s.pool.QueryRow(ctx, `
        SELECT `+seasonColumns+` FROM seasons
        WHERE season_id = $1 AND school_id = $2 AND deleted_at IS NULL`,
		seasonID, schoolID))
}

// GetByID fetches a non-deleted season without school scoping. Used only by
// the credential issuer to derive the owning school from a season id.
func (s *SeasonStore) GetByID(ctx context.Context, seasonID uuid.UUID) (SeasonRecord, error) {
	return scanSeasonRecord(s.pool.QueryRow(ctx, `
        SELECT `+seasonColumns+` FROM seasons
        WHERE season_id = $1 AND deleted_at IS NULL`,
		seasonID))
}

// GetActive returns the school's single active season.
func (s *SeasonStore) GetActive(ctx context.Context, schoolID uuid.UUID) (SeasonRecord, error) {
	return scanSeasonRecord(s.pool.QueryRow(ctx, `
        SELECT `+seasonColumns+` FROM seasons
        WHERE school_id = $1 AND is_active = TRUE AND deleted_at IS NULL`,
		schoolID))
}

// ListBySchool returns the school's non-deleted seasons ordered by start date.
func (s *SeasonStore) ListBySchool(ctx context.Context, schoolID uuid.UUID) ([]SeasonRecord, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+seasonColumns+` FROM seasons
        WHERE school_id = $1 AND deleted_at IS NULL
        ORDER BY start_date`, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SeasonRecord
	for rows.Next() {
		rec, err := scanSeasonRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListForUser returns the school's non-deleted seasons in which the user
// holds a role, ordered by start date.
func (s *SeasonStore) ListForUser(ctx context.Context, schoolID, userID uuid.UUID) ([]SeasonRecord, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT s.season_id, s.school_id, s.name, s.start_date, s.end_date, s.is_active,
               s.is_closed, s.closed_at, s.closed_by, s.created_at, s.updated_at, s.deleted_at
        FROM seasons s
        JOIN user_season_roles usr ON usr.season_id = s.season_id
        WHERE s.school_id = $1 AND usr.user_id = $2 AND s.deleted_at IS NULL
        ORDER BY s.start_date`, schoolID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SeasonRecord
	for rows.Next() {
		rec, err := scanSeasonRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeasonRecord(row rowScanner) (SeasonRecord, error) {
	var rec SeasonRecord
	err := row.Scan(
		&rec.SeasonID, &rec.SchoolID, &rec.Name, &rec.StartDate, &rec.EndDate,
		&rec.IsActive, &rec.IsClosed, &rec.ClosedAt, &rec.ClosedBy,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return SeasonRecord{}, ErrNotFound
	}
	if err != nil {
		return SeasonRecord{}, err
	}
	return rec, nil
}

// lockSchool serializes season writes per school via a row lock on the owning
// school, closing the read-then-write race between concurrent creations.
func lockSchool(ctx context.Context, tx pgx.Tx, schoolID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT school_id FROM schools WHERE school_id = $1 FOR UPDATE`, schoolID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// seasonOverlapExists runs the half-open interval check [start, end) against
// every non-deleted season of the school, closed or open, excluding excludeID.
func seasonOverlapExists(ctx context.Context, tx pgx.Tx, schoolID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM seasons
            WHERE school_id = $1 AND deleted_at IS NULL AND season_id <> $4
              AND start_date < $3 AND $2 < end_date
        )`, schoolID, start, end, excludeID).Scan(&exists)
	return exists, err
}

func deactivateSiblings(ctx context.Context, tx pgx.Tx, schoolID uuid.UUID, now time.Time) error {
	_, err := tx.Exec(ctx, `
        UPDATE seasons SET is_active = FALSE, updated_at = $2
        WHERE school_id = $1 AND is_active = TRUE AND deleted_at IS NULL`,
		schoolID, now)
	return err
}
