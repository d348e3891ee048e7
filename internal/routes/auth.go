package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/primewallet/walletclient/internal/identity"
	"github.com/primewallet/walletclient/internal/middleware"
)

// RegisterAuthRoutes wires authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *identity.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/register", h.Register)
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
	group.Post("/logout", h.Logout)

	r.Get("/user", middleware.RequireAuth(), h.Me)
	r.Post("/email/resend", h.ResendVerification)
}
