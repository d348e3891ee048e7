package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/primewallet/walletclient/internal/identity"
)

const (
	// CSRFCookie holds the anti-forgery token readable by the client.
	CSRFCookie = "XSRF-TOKEN"
	// CSRFHeader carries the token back on unsafe requests.
	CSRFHeader = "X-XSRF-TOKEN"

	// StatusCSRFMismatch is the non-standard status used for a stale or missing token.
	StatusCSRFMismatch = 419
)

// IssueCSRF sets a fresh XSRF-TOKEN cookie. The stored value is URL-encoded,
// so clients must decode it before echoing it in X-XSRF-TOKEN.
func IssueCSRF(secure bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return err
		}
		c.Cookie(&fiber.Cookie{
			Name:     CSRFCookie,
			Value:    url.QueryEscape(base64.StdEncoding.EncodeToString(raw)),
			Path:     "/",
			Expires:  time.Now().Add(2 * time.Hour),
			Secure:   secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// CSRF enforces the double-submit check on unsafe methods of stateful
// requests, those carrying the session or XSRF cookie. Bearer requests carry
// no ambient credential and skip it.
func CSRF() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		if hasBearer(c) {
			return c.Next()
		}
		if c.Cookies(identity.SessionCookie) == "" && c.Cookies(CSRFCookie) == "" {
			return c.Next()
		}

		cookie, err := url.QueryUnescape(c.Cookies(CSRFCookie))
		header := c.Get(CSRFHeader)
		if err != nil || cookie == "" || subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			return c.Status(StatusCSRFMismatch).JSON(fiber.Map{"message": "CSRF token mismatch."})
		}
		return c.Next()
	}
}

func hasBearer(c *fiber.Ctx) bool {
	return bearerToken(c) != ""
}

func bearerToken(c *fiber.Ctx) string {
	authz := c.Get(fiber.HeaderAuthorization)
	if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("Bearer "):])
}
