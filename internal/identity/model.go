package identity

import "time"

// User is a sandbox account.
type User struct {
	ID              string
	Name            string
	Email           string
	PasswordHash    []byte
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
}

// Verified reports whether the user confirmed their email.
func (u User) Verified() bool {
	return u.EmailVerifiedAt != nil
}

// Credentials is the login form.
type Credentials struct {
	Email    string
	Password string
}

// Registration is the sign-up form.
type Registration struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}
