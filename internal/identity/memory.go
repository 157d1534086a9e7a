package identity

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

// MemoryDirectory is an in-memory Directory for tests and dev mode.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[types.ID]User
}

// NewMemoryDirectory creates an empty in-memory directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[types.ID]User)}
}

// Seed adds a user directly, returning its ID. Intended for tests.
func (d *MemoryDirectory) Seed(username string, role Role) types.ID {
	now := time.Now().UTC()
	u := User{ID: types.NewID(), Username: username, Role: role, CreatedAt: now, UpdatedAt: now}
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
	return u.ID
}

func (d *MemoryDirectory) FindByID(_ context.Context, id types.ID) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", id.String())
	}
	copied := u
	return &copied, nil
}

func (d *MemoryDirectory) FindByUsername(_ context.Context, username string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.Username == username {
			copied := u
			return &copied, nil
		}
	}
	return nil, apperrors.NotFound("user", username)
}

func (d *MemoryDirectory) List(_ context.Context, role *Role) ([]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var users []User
	for _, u := range d.users {
		if role == nil || u.Role == *role {
			users = append(users, u)
		}
	}
	return users, nil
}

func (d *MemoryDirectory) Create(_ context.Context, u *User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.users {
		if existing.Username == u.Username {
			return apperrors.Conflict("username already taken")
		}
	}
	d.users[u.ID] = *u
	return nil
}

func (d *MemoryDirectory) SetRole(_ context.Context, id types.ID, role Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return apperrors.NotFound("user", id.String())
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	d.users[id] = u
	return nil
}

var _ Directory = (*MemoryDirectory)(nil)
