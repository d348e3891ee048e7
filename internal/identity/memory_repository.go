package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUserExists is returned when the email is already registered.
	ErrUserExists = errors.New("user exists")
	// ErrUserNotFound is returned for unknown emails and ids.
	ErrUserNotFound = errors.New("user not found")
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	MarkVerified(ctx context.Context, id string, at time.Time) error
}

type memoryRepository struct {
	mu      sync.RWMutex
	byEmail map[string]User
	emails  map[string]string
}

// NewMemoryRepository builds an in-memory user store.
func NewMemoryRepository() Repository {
	return &memoryRepository{byEmail: make(map[string]User), emails: make(map[string]string)}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	key := normalizeEmail(user.Email)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[key]; exists {
		return ErrUserExists
	}
	r.byEmail[key] = user
	r.emails[user.ID] = key
	return nil
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.emails[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.byEmail[key], nil
}

func (r *memoryRepository) MarkVerified(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.emails[id]
	if !ok {
		return ErrUserNotFound
	}
	user := r.byEmail[key]
	if user.EmailVerifiedAt == nil {
		verified := at.UTC()
		user.EmailVerifiedAt = &verified
		r.byEmail[key] = user
	}
	return nil
}
