// Package memstore is an in-memory UserStore. It is the reference
// implementation of the store contract (case-insensitive unique emails,
// soft-deleted rows invisible to lookups) and the backing store used in
// tests and examples.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authd"
)

type Store struct {
	mu      sync.RWMutex
	byID    map[string]*authd.User
	byEmail map[string]string
}

func New() *Store {
	return &Store{
		byID:    make(map[string]*authd.User),
		byEmail: make(map[string]string),
	}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func clone(u *authd.User) *authd.User {
	cp := *u
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

func (s *Store) GetByEmail(_ context.Context, email string) (*authd.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalize(email)]
	if !ok {
		return nil, authd.ErrStoreUserNotFound
	}
	user := s.byID[id]
	if user == nil || user.DeletedAt != nil {
		return nil, authd.ErrStoreUserNotFound
	}
	return clone(user), nil
}

func (s *Store) GetByID(_ context.Context, userID string) (*authd.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user := s.byID[userID]
	if user == nil || user.DeletedAt != nil {
		return nil, authd.ErrStoreUserNotFound
	}
	return clone(user), nil
}

func (s *Store) Create(_ context.Context, input authd.CreateUserInput) (*authd.User, error) {
	email := normalize(input.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byEmail[email]; ok {
		if existing := s.byID[id]; existing != nil && existing.DeletedAt == nil {
			return nil, authd.ErrStoreDuplicateEmail
		}
		// A soft-deleted holder does not block re-registration; the
		// email index moves to the new row.
	}

	now := time.Now()
	user := &authd.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: input.PasswordHash,
		FullName:     input.FullName,
		CompanyName:  input.CompanyName,
		AuthMethod:   input.AuthMethod,
		Role:         input.Role,
		Status:       input.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[user.ID] = user
	s.byEmail[email] = user.ID

	return clone(user), nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.byID[userID]
	if user == nil || user.DeletedAt != nil {
		return authd.ErrStoreUserNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpdateStatus(_ context.Context, userID string, status authd.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.byID[userID]
	if user == nil || user.DeletedAt != nil {
		return authd.ErrStoreUserNotFound
	}
	user.Status = status
	user.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SetEmailVerified(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.byID[userID]
	if user == nil || user.DeletedAt != nil {
		return authd.ErrStoreUserNotFound
	}
	user.EmailVerified = true
	user.UpdatedAt = time.Now()
	return nil
}

// SoftDelete marks the user deleted. The row is retained but becomes
// invisible to lookups, and its email no longer blocks registration.
func (s *Store) SoftDelete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.byID[userID]
	if user == nil || user.DeletedAt != nil {
		return authd.ErrStoreUserNotFound
	}
	now := time.Now()
	user.DeletedAt = &now
	user.Status = authd.StatusDeleted
	user.UpdatedAt = now
	if s.byEmail[user.Email] == userID {
		delete(s.byEmail, user.Email)
	}
	return nil
}
