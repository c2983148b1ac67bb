package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clinicflow/identity-service/internal/model"
)

// MemoryStore keeps users in process memory. It is used by tests and by
// STORE_DRIVER=memory for local development; data does not survive a
// restart. All methods hold one mutex so every conditional write is atomic.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    map[string]*model.User{},
		byEmail: map[string]string{},
		now:     time.Now,
	}
}

var _ UserStore = (*MemoryStore)(nil)

func (s *MemoryStore) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return ErrEmailExists
	}
	c := cloneUser(u)
	s.byID[u.ID] = c
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *MemoryStore) List(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]model.User, 0, len(s.byID))
	for _, u := range s.byID {
		users = append(users, *cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (s *MemoryStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return s.mutate(id, ErrNotFound, func(u *model.User) bool {
		u.PasswordHash = passwordHash
		return true
	})
}

func (s *MemoryStore) UpdateRole(_ context.Context, id string, role model.Role) error {
	return s.mutate(id, ErrNotFound, func(u *model.User) bool {
		u.Role = role
		return true
	})
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byEmail, u.Email)
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) SetRefreshToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	return s.mutate(id, ErrNotFound, func(u *model.User) bool {
		u.RefreshTokenHash = tokenHash
		u.RefreshTokenExpiresAt = timePtr(expiresAt)
		return true
	})
}

func (s *MemoryStore) SwapRefreshToken(_ context.Context, id, currentHash, newHash string, newExpiresAt, now time.Time) error {
	return s.mutate(id, ErrStaleToken, func(u *model.User) bool {
		if u.RefreshTokenHash != currentHash || !u.HasLiveRefreshToken(now) {
			return false
		}
		u.RefreshTokenHash = newHash
		u.RefreshTokenExpiresAt = timePtr(newExpiresAt)
		return true
	})
}

func (s *MemoryStore) ClearRefreshToken(_ context.Context, id string) error {
	return s.mutate(id, ErrNotFound, func(u *model.User) bool {
		u.RefreshTokenHash = ""
		u.RefreshTokenExpiresAt = nil
		return true
	})
}

func (s *MemoryStore) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	return s.mutate(id, ErrNotFound, func(u *model.User) bool {
		u.ResetTokenHash = tokenHash
		u.ResetTokenExpiresAt = timePtr(expiresAt)
		return true
	})
}

func (s *MemoryStore) ClearResetToken(_ context.Context, id, tokenHash string) error {
	err := s.mutate(id, nil, func(u *model.User) bool {
		if u.ResetTokenHash == tokenHash {
			u.ResetTokenHash = ""
			u.ResetTokenExpiresAt = nil
		}
		return true
	})
	if err == ErrNotFound {
		return nil
	}
	return err
}

func (s *MemoryStore) RedeemResetToken(_ context.Context, id, tokenHash, passwordHash string, now time.Time) error {
	return s.mutate(id, ErrStaleToken, func(u *model.User) bool {
		if u.ResetTokenHash != tokenHash || !u.HasLiveResetToken(now) {
			return false
		}
		u.PasswordHash = passwordHash
		u.ResetTokenHash = ""
		u.ResetTokenExpiresAt = nil
		return true
	})
}

// mutate applies fn to the stored user under the lock. A missing user
// yields ErrNotFound, or miss when miss is ErrStaleToken; fn returning
// false yields miss.
func (s *MemoryStore) mutate(id string, miss error, fn func(u *model.User) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		if miss == ErrStaleToken {
			return ErrStaleToken
		}
		return ErrNotFound
	}
	if !fn(u) {
		return miss
	}
	u.UpdatedAt = s.now().UTC()
	return nil
}

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.RefreshTokenExpiresAt != nil {
		c.RefreshTokenExpiresAt = timePtr(*u.RefreshTokenExpiresAt)
	}
	if u.ResetTokenExpiresAt != nil {
		c.ResetTokenExpiresAt = timePtr(*u.ResetTokenExpiresAt)
	}
	return &c
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
