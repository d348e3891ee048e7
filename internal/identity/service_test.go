package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestService() *Service {
	return NewService(NewMemoryRepository()).WithHashCost(bcrypt.MinCost)
}

func TestRegisterVerifyAuthenticate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, Registration{
		Name:                 "Ada",
		Email:                " Ada@Example.com ",
		Password:             "secret123",
		PasswordConfirmation: "secret123",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "ada@example.com" || user.Verified() {
		t.Fatalf("unexpected user %+v", user)
	}

	if _, err := svc.Authenticate(ctx, Credentials{Email: "ada@example.com", Password: "secret123"}); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected unverified error, got %v", err)
	}

	if _, err := svc.Verify(ctx, "ADA@example.com"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	authed, err := svc.Authenticate(ctx, Credentials{Email: "ada@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID || !authed.Verified() {
		t.Fatalf("unexpected authenticated user %+v", authed)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, Registration{Name: "Bo", Email: "bo@example.com", Password: "secret123", PasswordConfirmation: "secret123"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Email: "bo@example.com", Password: "nope12345"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Email: "nobody@example.com", Password: "secret123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email must look like a bad password, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, Registration{Email: "not-an-email", Password: "short", PasswordConfirmation: "short"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"name", "email", "password"} {
		if len(verr.Fields[field]) == 0 {
			t.Fatalf("missing %s error in %+v", field, verr.Fields)
		}
	}

	reg := Registration{Name: "Cy", Email: "cy@example.com", Password: "secret123", PasswordConfirmation: "secret123"}
	if _, err := svc.Register(ctx, reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = svc.Register(ctx, reg)
	if !errors.As(err, &verr) || verr.Fields["email"][0] != "The email has already been taken." {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestSessionsExpire(t *testing.T) {
	sessions := NewSessions(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return now }

	token := sessions.Create("u1")
	if id, ok := sessions.Lookup(token); !ok || id != "u1" {
		t.Fatalf("lookup: %q %v", id, ok)
	}
	now = now.Add(2 * time.Minute)
	if _, ok := sessions.Lookup(token); ok {
		t.Fatalf("expired session still valid")
	}

	token = sessions.Create("u2")
	sessions.Revoke(token)
	if _, ok := sessions.Lookup(token); ok {
		t.Fatalf("revoked session still valid")
	}
}
