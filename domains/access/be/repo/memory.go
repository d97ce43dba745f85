package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/enrolly/enrolly-backend/domains/access/be/service"
)

type assignment struct {
	userID   uuid.UUID
	seasonID uuid.UUID
}

// Memory is an in-memory access repository with the same semantics as the
// Postgres one.
type Memory struct {
	mu          sync.Mutex
	roles       map[string]uuid.UUID
	permissions map[string]uuid.UUID
	grants      map[uuid.UUID]map[uuid.UUID]struct{} // roleID -> permissionIDs
	assignments map[assignment]uuid.UUID             // (user, season) -> roleID
}

// NewMemory creates an empty in-memory access repository.
func NewMemory() *Memory {
	return &Memory{
		roles:       map[string]uuid.UUID{},
		permissions: map[string]uuid.UUID{},
		grants:      map[uuid.UUID]map[uuid.UUID]struct{}{},
		assignments: map[assignment]uuid.UUID{},
	}
}

func (r *Memory) RoleFor(_ context.Context, userID, seasonID uuid.UUID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roleID, ok := r.assignments[assignment{userID, seasonID}]
	if !ok {
		return "", service.ErrNoRole
	}
	for name, id := range r.roles {
		if id == roleID {
			return name, nil
		}
	}
	return "", service.ErrNoRole
}

func (r *Memory) PermissionsFor(_ context.Context, userID, seasonID uuid.UUID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := []string{}
	roleID, ok := r.assignments[assignment{userID, seasonID}]
	if !ok {
		return names, nil
	}
	for name, id := range r.permissions {
		if _, granted := r.grants[roleID][id]; granted {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *Memory) EnsureRole(_ context.Context, name string, _ time.Time) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.roles[name]; ok {
		return id, nil
	}
	id := uuid.New()
	r.roles[name] = id
	return id, nil
}

func (r *Memory) EnsurePermission(_ context.Context, name string, _ time.Time) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.permissions[name]; ok {
		return id, nil
	}
	id := uuid.New()
	r.permissions[name] = id
	return id, nil
}

func (r *Memory) GrantPermission(_ context.Context, roleID, permissionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.grants[roleID] == nil {
		r.grants[roleID] = map[uuid.UUID]struct{}{}
	}
	r.grants[roleID][permissionID] = struct{}{}
	return nil
}

func (r *Memory) RevokePermission(_ context.Context, roleID, permissionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.grants[roleID], permissionID)
	return nil
}

func (r *Memory) AssignRole(_ context.Context, userID, seasonID, roleID uuid.UUID, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.assignments[assignment{userID, seasonID}] = roleID
	return nil
}

func (r *Memory) RevokeRole(_ context.Context, userID, seasonID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.assignments, assignment{userID, seasonID})
	return nil
}

func (r *Memory) FindRole(_ context.Context, name string) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.roles[name]
	if !ok {
		return uuid.Nil, service.ErrRoleNotFound
	}
	return id, nil
}

func (r *Memory) FindPermission(_ context.Context, name string) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.permissions[name]
	if !ok {
		return uuid.Nil, service.ErrPermissionNotFound
	}
	return id, nil
}
