package memory

import (
	"context"
	"sync"

	"scheduled-exam-service/internal/domain"
)

// UserDirectory is an in-memory implementation of app.UserDirectory.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[int64]domain.User
}

func NewUserDirectory(users ...domain.User) *UserDirectory {
	d := &UserDirectory{users: make(map[int64]domain.User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// Put adds or replaces a user.
func (d *UserDirectory) Put(u domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *UserDirectory) FindByIDs(_ context.Context, ids []int64) (map[int64]domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[int64]domain.User, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}
