package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/primewallet/walletclient/internal/config"
	"github.com/primewallet/walletclient/internal/transport"
)

const (
	msgLoginOK          = "Login successful"
	msgLoginFailed      = "Login failed. Please check your credentials."
	msgConnection       = "Connection failed. Please try again."
	msgNoSession        = "Login was accepted but no session was established. Check the cookie and CORS configuration of the backend."
	msgRegistered       = "Registration successful. Please verify your email."
	msgRegisterFailed   = "Registration failed. Please try again."
	msgVerificationSent = "Verification email sent"
)

// ErrEmailRequired is returned by ResendVerification for a blank email.
var ErrEmailRequired = errors.New("email is required to resend verification")

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Credentials are what the user types on the login form.
type Credentials struct {
	Email    string
	Password string
}

// LoginOutcome discriminates the result of Login.
type LoginOutcome int

const (
	LoginSucceeded LoginOutcome = iota
	// LoginRejected means the backend refused the credentials.
	LoginRejected
	// LoginUnverified means the account exists but its email is not verified.
	LoginUnverified
	// LoginSessionNotEstablished means login was accepted but the follow-up
	// identity check failed, typically a cookie or CORS misconfiguration.
	LoginSessionNotEstablished
	LoginNetworkError
	LoginAborted
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginSucceeded:
		return "succeeded"
	case LoginRejected:
		return "rejected"
	case LoginUnverified:
		return "unverified"
	case LoginSessionNotEstablished:
		return "session_not_established"
	case LoginNetworkError:
		return "network_error"
	case LoginAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// LoginResult is what the UI gets back from Login.
type LoginResult struct {
	Outcome     LoginOutcome
	Status      int
	Message     string
	FieldErrors map[string][]string
}

// Success reports whether the user is now signed in.
func (r LoginResult) Success() bool { return r.Outcome == LoginSucceeded }

// Login signs the user in and confirms with the identity endpoint that the
// backend really holds a session before reporting success.
func (m *Manager) Login(ctx context.Context, creds Credentials) LoginResult {
	if err := m.api.PrimeCSRF(ctx); err != nil {
		if transport.IsAbort(err) {
			return LoginResult{Outcome: LoginAborted}
		}
		m.logger.Warn("csrf priming before login failed", slog.Any("error", err))
	}

	resp, err := m.api.Do(ctx, transport.Request{
		Method:               http.MethodPost,
		Path:                 loginPath,
		Body:                 map[string]string{"email": creds.Email, "password": creds.Password},
		SuppressUnauthorized: true,
	})
	if err != nil {
		return m.loginFailure(err)
	}

	var body struct {
		Message     string `json:"message"`
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	_ = resp.Decode(&body)
	if token := firstNonEmpty(body.Token, body.AccessToken); token != "" {
		m.api.SetToken(token)
	}

	user, err := m.fetchUser(ctx)
	if err != nil {
		if transport.IsAbort(err) {
			return LoginResult{Outcome: LoginAborted}
		}
		m.logger.Error("login accepted but session not established", slog.Any("error", err))
		m.clear(StatusAnonymous, true)
		return LoginResult{
			Outcome: LoginSessionNotEstablished,
			Status:  transport.StatusOf(err),
			Message: msgNoSession,
		}
	}

	m.mu.Lock()
	m.user = user
	m.wallet = nil
	m.status = StatusAuthenticated
	m.checked = true
	m.epoch++
	m.mu.Unlock()
	m.logger.Info("login succeeded", slog.String("user_id", user.ID))

	// A wallet in the login body is ignored; the snapshot always comes from /wallets.
	if _, err := m.FetchWallet(ctx); err != nil {
		m.logger.Warn("wallet fetch after login failed", slog.Any("error", err))
	}

	return LoginResult{
		Outcome: LoginSucceeded,
		Status:  resp.Status,
		Message: firstNonEmpty(body.Message, msgLoginOK),
	}
}

func (m *Manager) loginFailure(err error) LoginResult {
	if transport.IsAbort(err) {
		return LoginResult{Outcome: LoginAborted}
	}
	var apiErr *transport.APIError
	if !errors.As(err, &apiErr) {
		return LoginResult{Outcome: LoginNetworkError, Message: msgConnection}
	}
	if apiErr.Status == http.StatusForbidden && isUnverified(apiErr) {
		return LoginResult{
			Outcome: LoginUnverified,
			Status:  apiErr.Status,
			Message: apiErr.Message(),
		}
	}
	return LoginResult{
		Outcome:     LoginRejected,
		Status:      apiErr.Status,
		Message:     firstNonEmpty(apiErr.Message(), msgLoginFailed),
		FieldErrors: apiErr.FieldErrors(),
	}
}

// isUnverified looks for the backend's unverified-email marker.
func isUnverified(apiErr *transport.APIError) bool {
	var body struct {
		Code          string `json:"code"`
		Verified      *bool  `json:"verified"`
		EmailVerified *bool  `json:"email_verified"`
	}
	if err := apiErr.Decode(&body); err == nil {
		if body.Code == "email_not_verified" || body.Code == "unverified" {
			return true
		}
		if (body.Verified != nil && !*body.Verified) || (body.EmailVerified != nil && !*body.EmailVerified) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(apiErr.Message()), "verif")
}

// Registration is the sign-up form.
type Registration struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

// RegisterResult is what the UI gets back from Register.
type RegisterResult struct {
	Success     bool
	Aborted     bool
	Message     string
	FieldErrors map[string][]string
}

// Register creates an account. It never signs the user in; the backend
// expects the email to be verified first.
func (m *Manager) Register(ctx context.Context, reg Registration) RegisterResult {
	if fields := validateRegistration(reg); len(fields) > 0 {
		return RegisterResult{Message: "Please correct the highlighted fields.", FieldErrors: fields}
	}

	resp, err := m.api.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   registerPath,
		Body: map[string]string{
			"name":                  strings.TrimSpace(reg.Name),
			"email":                 strings.TrimSpace(reg.Email),
			"password":              reg.Password,
			"password_confirmation": reg.PasswordConfirmation,
		},
	})
	if err != nil {
		if transport.IsAbort(err) {
			return RegisterResult{Aborted: true}
		}
		var apiErr *transport.APIError
		if errors.As(err, &apiErr) {
			return RegisterResult{
				Message:     firstNonEmpty(apiErr.Message(), msgRegisterFailed),
				FieldErrors: apiErr.FieldErrors(),
			}
		}
		return RegisterResult{Message: msgConnection}
	}

	var body struct {
		Message string `json:"message"`
	}
	_ = resp.Decode(&body)
	return RegisterResult{Success: true, Message: firstNonEmpty(body.Message, msgRegistered)}
}

func validateRegistration(reg Registration) map[string][]string {
	fields := map[string][]string{}
	if strings.TrimSpace(reg.Name) == "" {
		fields["name"] = []string{"The name field is required."}
	}
	if !emailPattern.MatchString(strings.TrimSpace(reg.Email)) {
		fields["email"] = []string{"The email must be a valid email address."}
	}
	switch n := len(reg.Password); {
	case n < config.MinPasswordLength:
		fields["password"] = []string{"The password must be at least 8 characters."}
	case n > config.MaxPasswordLength:
		fields["password"] = []string{"The password may not be greater than 128 characters."}
	case reg.Password != reg.PasswordConfirmation:
		fields["password"] = []string{"The password confirmation does not match."}
	}
	return fields
}

// ResendVerification asks the backend to send the verification email again.
func (m *Manager) ResendVerification(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	resp, err := m.api.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   resendPath,
		Body:   map[string]string{"email": email},
	})
	if err != nil {
		var apiErr *transport.APIError
		if errors.As(err, &apiErr) && apiErr.Message() != "" {
			return "", errors.New(apiErr.Message())
		}
		return "", err
	}
	var body struct {
		Message string `json:"message"`
	}
	_ = resp.Decode(&body)
	return firstNonEmpty(body.Message, msgVerificationSent), nil
}

// Logout ends the session. The server call is best effort; local state is
// always cleared.
func (m *Manager) Logout(ctx context.Context) {
	_, err := m.api.Do(ctx, transport.Request{
		Method:               http.MethodPost,
		Path:                 logoutPath,
		SuppressUnauthorized: true,
	})
	if err != nil && !transport.IsAbort(err) {
		m.logger.Warn("logout request failed", slog.Any("error", err))
	}
	m.api.ResetCredentials()
	m.clear(StatusUnchecked, false)
	m.logger.Info("logged out")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
