package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/enrolly/enrolly-backend/domains/schools/be/service"
)

// Memory is an in-memory school repository. Membership links a user to the
// schools the selection flow should offer them.
type Memory struct {
	mu          sync.Mutex
	schools     map[uuid.UUID]service.School
	memberships map[uuid.UUID]map[uuid.UUID]struct{} // userID -> schoolIDs
}

// NewMemory creates an empty in-memory school repository.
func NewMemory() *Memory {
	return &Memory{
		schools:     map[uuid.UUID]service.School{},
		memberships: map[uuid.UUID]map[uuid.UUID]struct{}{},
	}
}

// Add stores a school.
func (r *Memory) Add(school service.School) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schools[school.ID] = school
}

// GrantMembership records that the user holds a role somewhere in the school.
func (r *Memory) GrantMembership(userID, schoolID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.memberships[userID] == nil {
		r.memberships[userID] = map[uuid.UUID]struct{}{}
	}
	r.memberships[userID][schoolID] = struct{}{}
}

func (r *Memory) Get(_ context.Context, schoolID uuid.UUID) (service.School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	school, ok := r.schools[schoolID]
	if !ok {
		return service.School{}, service.ErrNotFound
	}
	return school, nil
}

func (r *Memory) ListForUser(_ context.Context, userID uuid.UUID) ([]service.School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	schools := make([]service.School, 0)
	for schoolID := range r.memberships[userID] {
		school, ok := r.schools[schoolID]
		if !ok || !school.IsActive {
			continue
		}
		schools = append(schools, school)
	}
	sort.Slice(schools, func(i, j int) bool { return schools[i].Name < schools[j].Name })
	return schools, nil
}
