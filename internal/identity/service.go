package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/primewallet/walletclient/internal/config"
)

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotVerified blocks login until the email is confirmed.
	ErrEmailNotVerified = errors.New("email not verified")
)

// ValidationError lists rejected registration fields.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid registration: %d field(s)", len(e.Fields))
}

// Service manages the identity lifecycle.
type Service struct {
	repo Repository
	cost int
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost, now: time.Now}
}

// WithHashCost lowers the bcrypt cost, for tests.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// Register creates an unverified user with a hashed password.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = normalizeEmail(reg.Email)

	fields := map[string][]string{}
	if reg.Name == "" {
		fields["name"] = []string{"The name field is required."}
	}
	if _, err := mail.ParseAddress(reg.Email); err != nil || !strings.Contains(reg.Email, ".") {
		fields["email"] = []string{"The email must be a valid email address."}
	}
	switch {
	case len(reg.Password) < config.MinPasswordLength:
		fields["password"] = []string{fmt.Sprintf("The password must be at least %d characters.", config.MinPasswordLength)}
	case len(reg.Password) > config.MaxPasswordLength:
		fields["password"] = []string{fmt.Sprintf("The password may not be greater than %d characters.", config.MaxPasswordLength)}
	case reg.Password != reg.PasswordConfirmation:
		fields["password"] = []string{"The password confirmation does not match."}
	}
	if len(fields) > 0 {
		return User{}, &ValidationError{Fields: fields}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.New().String(),
		Name:         reg.Name,
		Email:        reg.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return User{}, &ValidationError{Fields: map[string][]string{"email": {"The email has already been taken."}}}
		}
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies the password and that the email is confirmed.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !user.Verified() {
		return User{}, ErrEmailNotVerified
	}
	return user, nil
}

// Verify confirms the email of the user. The sandbox has no mail delivery, so
// asking for a verification email verifies immediately.
func (s *Service) Verify(ctx context.Context, email string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if err := s.repo.MarkVerified(ctx, user.ID, s.now()); err != nil {
		return User{}, err
	}
	return s.repo.FindByID(ctx, user.ID)
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByEmail returns the user registered with email.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.FindByEmail(ctx, email)
}
