package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/primewallet/walletclient/internal/payments"
)

// RegisterWalletRoutes wires wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, h *payments.Handler, auth fiber.Handler) {
	r.Get("/wallets", auth, h.Wallets)
	r.Post("/resolve-recipient", auth, h.ResolveRecipient)
}
