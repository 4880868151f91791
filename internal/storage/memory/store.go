// Package memory is a process-local credential store used by tests and by
// STORE_DRIVER=memory for throwaway local runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hongminglow/finflex-be/internal/models"
	"github.com/hongminglow/finflex-be/internal/storage"
)

var _ storage.CredentialStore = (*Store)(nil)

type pendingOTP struct {
	code      string
	expiresAt time.Time
}

// Store keeps users and pending codes in maps guarded by one mutex.
type Store struct {
	mu    sync.RWMutex
	users map[string]models.User
	otps  map[string]pendingOTP
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users: make(map[string]models.User),
		otps:  make(map[string]pendingOTP),
	}
}

// CreateUser inserts user, enforcing username, email and friend code uniqueness.
func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	for _, existing := range s.users {
		if existing.ID == user.ID ||
			existing.Email == user.Email ||
			existing.Username == user.Username ||
			existing.FriendCode == user.FriendCode {
			return models.User{}, storage.ErrAlreadyExists
		}
	}
	if user.Friends == nil {
		user.Friends = []string{}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

// FindByID fetches a user by ID.
func (s *Store) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return cloneUser(u), nil
}

// FindByUsername fetches a user by username.
func (s *Store) FindByUsername(_ context.Context, username string) (models.User, error) {
	return s.findBy(func(u models.User) bool { return u.Username == username })
}

// FindByEmail fetches a user by email address.
func (s *Store) FindByEmail(_ context.Context, email string) (models.User, error) {
	return s.findBy(func(u models.User) bool { return u.Email == email })
}

// FindByFriendCode fetches a user by invite code.
func (s *Store) FindByFriendCode(_ context.Context, code string) (models.User, error) {
	return s.findBy(func(u models.User) bool { return u.FriendCode == code })
}

// SaveOTP replaces the pending code for email.
func (s *Store) SaveOTP(_ context.Context, email, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.otps[email] = pendingOTP{code: code, expiresAt: expiresAt}
	return nil
}

// ConsumeOTP deletes the pending code when it matches and is still live.
func (s *Store) ConsumeOTP(_ context.Context, email, code string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.otps[email]
	if !ok || pending.code != code || !now.Before(pending.expiresAt) {
		return false, nil
	}
	delete(s.otps, email)
	return true, nil
}

// PendingOTP exposes the live code for email, for tests and the dev server.
func (s *Store) PendingOTP(email string) (code string, expiresAt time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending, ok := s.otps[email]
	return pending.code, pending.expiresAt, ok
}

// UserCount returns the number of stored users.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *Store) findBy(match func(models.User) bool) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return models.User{}, storage.ErrNotFound
}

func cloneUser(u models.User) models.User {
	friends := make([]string, len(u.Friends))
	copy(friends, u.Friends)
	u.Friends = friends
	return u
}

// PurgeExpiredOTPs drops codes that expired at or before now.
func (s *Store) PurgeExpiredOTPs(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for email, pending := range s.otps {
		if !now.Before(pending.expiresAt) {
			delete(s.otps, email)
			purged++
		}
	}
	return purged, nil
}
