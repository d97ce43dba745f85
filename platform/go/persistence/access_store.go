package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccessStore provides access to the role/permission tables:
// roles, permissions, role_permissions and user_season_roles.
type AccessStore struct {
	pool *pgxpool.Pool
}

// NewAccessStore creates a store; assumes migrations already created the tables.
func NewAccessStore(ctx context.Context, pool *pgxpool.Pool) (*AccessStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &AccessStore{pool: pool}, nil
}

// RoleFor returns the name of the single role the user holds in the season.
// ErrNotFound means the user holds no role there.
func (s *AccessStore) RoleFor(ctx context.Context, userID, seasonID uuid.UUID) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `
        SELECT r.name
        FROM user_season_roles usr
        JOIN roles r ON r.role_id = usr.role_id
        WHERE usr.user_id = $1 AND usr.season_id = $2`,
		userID, seasonID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// PermissionsFor returns the permission names granted to the user's role in
// the season. A user without a role gets an empty slice. This is a live read;
// callers must not cache the result beyond the current request.
func (s *AccessStore) PermissionsFor(ctx context.Context, userID, seasonID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT p.name
        FROM user_season_roles usr
        JOIN role_permissions rp ON rp.role_id = usr.role_id
        JOIN permissions p ON p.permission_id = rp.permission_id
        WHERE usr.user_id = $1 AND usr.season_id = $2
        ORDER BY p.name`,
		userID, seasonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// EnsureRole inserts the role if absent and returns its id.
func (s *AccessStore) EnsureRole(ctx context.Context, name string, now time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
        INSERT INTO roles (role_id, name, created_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING role_id`,
		uuid.New(), name, now).Scan(&id)
	return id, err
}

// EnsurePermission inserts the permission if absent and returns its id.
func (s *AccessStore) EnsurePermission(ctx context.Context, name string, now time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
        INSERT INTO permissions (permission_id, name, created_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING permission_id`,
		uuid.New(), name, now).Scan(&id)
	return id, err
}

// GrantPermission links a permission to a role, idempotently.
func (s *AccessStore) GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO role_permissions (role_id, permission_id)
        VALUES ($1, $2)
        ON CONFLICT DO NOTHING`,
		roleID, permissionID)
	return err
}

// RevokePermission removes a permission from a role. Takes effect on the next
// authorization check; outstanding credentials are unaffected by design.
func (s *AccessStore) RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
        DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	return err
}

// AssignRole sets the user's single role for the season, replacing any
// previous assignment.
func (s *AccessStore) AssignRole(ctx context.Context, userID, seasonID, roleID uuid.UUID, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO user_season_roles (user_id, season_id, role_id, assigned_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, season_id) DO UPDATE SET role_id = EXCLUDED.role_id, assigned_at = EXCLUDED.assigned_at`,
		userID, seasonID, roleID, now)
	return err
}

// RevokeRole removes the user's role in the season.
func (s *AccessStore) RevokeRole(ctx context.Context, userID, seasonID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
        DELETE FROM user_season_roles WHERE user_id = $1 AND season_id = $2`,
		userID, seasonID)
	return err
}

// FindRole returns a role id by name.
func (s *AccessStore) FindRole(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `SELECT role_id FROM roles WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	return id, err
}

// FindPermission returns a permission id by name.
func (s *AccessStore) FindPermission(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `SELECT permission_id FROM permissions WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	return id, err
}
