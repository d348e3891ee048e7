package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Locals keys set by the session middleware.
const (
	LocalUserID       = "user_id"
	LocalSessionToken = "session_token"
)

const msgInvalidData = "The given data was invalid."

// Accounts provisions and describes the wallet of a user.
type Accounts interface {
	Provision(ctx context.Context, userID string) error
	WalletView(ctx context.Context, userID string) (any, error)
}

// Handler exposes identity endpoints.
type Handler struct {
	service  *Service
	sessions *Sessions
	accounts Accounts
	logger   *slog.Logger
	secure   bool
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service, sessions *Sessions, accounts Accounts, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, sessions: sessions, accounts: accounts, logger: logger}
}

// SecureCookies marks the session cookie Secure.
func (h *Handler) SecureCookies(on bool) *Handler {
	h.secure = on
	return h
}

type registerRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

// UserJSON renders a user the way the API reports it.
func UserJSON(u User) fiber.Map {
	var verifiedAt any
	if u.EmailVerifiedAt != nil {
		verifiedAt = u.EmailVerifiedAt.Format(time.RFC3339)
	}
	return fiber.Map{
		"id":                u.ID,
		"name":              u.Name,
		"email":             u.Email,
		"email_verified_at": verifiedAt,
		"created_at":        u.CreatedAt.Format(time.RFC3339),
	}
}

// Register handles user onboarding. The account starts unverified.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "Malformed request body.")
	}
	user, err := h.service.Register(c.UserContext(), Registration{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{"message": msgInvalidData, "errors": verr.Fields})
		}
		return err
	}
	if err := h.accounts.Provision(c.UserContext(), user.ID); err != nil {
		return err
	}
	h.logger.Info("user registered", slog.String("user_id", user.ID))
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful. Please verify your email.",
		"user":    UserJSON(user),
	})
}

// Login verifies credentials and starts a session, returned both as a
// cookie and as a bearer token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "Malformed request body.")
	}
	user, err := h.service.Authenticate(c.UserContext(), Credentials{Email: req.Email, Password: req.Password})
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
			"message": "These credentials do not match our records.",
			"errors":  fiber.Map{"email": []string{"These credentials do not match our records."}},
		})
	case errors.Is(err, ErrEmailNotVerified):
		return c.Status(http.StatusForbidden).JSON(fiber.Map{
			"message": "Your email address is not verified.",
			"code":    "email_not_verified",
		})
	case err != nil:
		return err
	}

	wallet, err := h.accounts.WalletView(c.UserContext(), user.ID)
	if err != nil {
		return err
	}
	token := h.sessions.Create(user.ID)
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	h.logger.Info("user logged in", slog.String("user_id", user.ID))
	return c.JSON(fiber.Map{
		"message": "Login successful",
		"user":    UserJSON(user),
		"wallet":  wallet,
		"token":   token,
	})
}

// Logout revokes the current session.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if token, ok := c.Locals(LocalSessionToken).(string); ok && token != "" {
		h.sessions.Revoke(token)
	}
	c.ClearCookie(SessionCookie)
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me returns the signed-in user.
func (h *Handler) Me(c *fiber.Ctx) error {
	userID, _ := c.Locals(LocalUserID).(string)
	user, err := h.service.Get(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fiber.NewError(http.StatusUnauthorized, "Unauthenticated.")
		}
		return err
	}
	return c.JSON(fiber.Map{"user": UserJSON(user)})
}

// ResendVerification stands in for the verification mail: the sandbox has
// no mailer, so the address is confirmed on the spot.
func (h *Handler) ResendVerification(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "Malformed request body.")
	}
	if _, err := h.service.Verify(c.UserContext(), req.Email); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
				"message": "We can't find a user with that email address.",
				"errors":  fiber.Map{"email": []string{"We can't find a user with that email address."}},
			})
		}
		return err
	}
	return c.JSON(fiber.Map{"message": "Verification email sent"})
}
