package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/primewallet/walletclient/internal/identity"
)

// Session resolves the session cookie or bearer token into the user id
// local. Anonymous requests pass through.
func Session(sessions *identity.Sessions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			token = c.Cookies(identity.SessionCookie)
		}
		if token != "" {
			if uid, ok := sessions.Lookup(token); ok {
				c.Locals(identity.LocalUserID, uid)
				c.Locals(identity.LocalSessionToken, token)
			}
		}
		return c.Next()
	}
}

// RequireAuth rejects requests without a session.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if uid, _ := c.Locals(identity.LocalUserID).(string); uid == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"message": "Unauthenticated."})
		}
		return c.Next()
	}
}
