package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/primewallet/walletclient/internal/payments"
)

// RegisterPaymentRoutes wires transfer endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, auth fiber.Handler) {
	r.Post("/transactions/transfer", auth, h.P2P)
	r.Get("/transactions", auth, h.Transactions)
}
