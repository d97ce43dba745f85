package repo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/enrolly/enrolly-backend/domains/auth/be/service"
)

var errNotFound = errors.New("record not found")

// MemoryUsers is an in-memory user repository.
type MemoryUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]service.User
}

// NewMemoryUsers creates an empty in-memory user repository.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: map[uuid.UUID]service.User{}}
}

// Add stores a user; the email is lowercased like the database does.
func (r *MemoryUsers) Add(user service.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	r.users[user.ID] = user
}

func (r *MemoryUsers) GetByEmail(_ context.Context, email string) (service.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email = strings.ToLower(email)
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return service.User{}, errNotFound
}

func (r *MemoryUsers) Get(_ context.Context, userID uuid.UUID) (service.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return service.User{}, errNotFound
	}
	return user, nil
}

// MemoryCredentials is an in-memory credential repository.
type MemoryCredentials struct {
	mu          sync.Mutex
	credentials map[uuid.UUID]service.Credential
	revoked     map[uuid.UUID]struct{}
}

// NewMemoryCredentials creates an empty in-memory credential repository.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{
		credentials: map[uuid.UUID]service.Credential{},
		revoked:     map[uuid.UUID]struct{}{},
	}
}

func (r *MemoryCredentials) Insert(_ context.Context, c service.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials[c.ID] = c
	return nil
}

func (r *MemoryCredentials) GetByTokenHash(_ context.Context, tokenHash string) (service.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, credential := range r.credentials {
		if credential.TokenHash != tokenHash {
			continue
		}
		if _, gone := r.revoked[id]; gone {
			return service.Credential{}, errNotFound
		}
		return credential, nil
	}
	return service.Credential{}, errNotFound
}

func (r *MemoryCredentials) Revoke(_ context.Context, credentialID uuid.UUID, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.credentials[credentialID]; !ok {
		return errNotFound
	}
	r.revoked[credentialID] = struct{}{}
	return nil
}
