package payments

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/primewallet/walletclient/internal/config"
	"github.com/primewallet/walletclient/internal/identity"
	"github.com/primewallet/walletclient/internal/ledger"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	Recipient      string          `json:"recipient"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Note           string          `json:"note"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type resolveRequest struct {
	Recipient string `json:"recipient"`
}

func userID(c *fiber.Ctx) string {
	uid, _ := c.Locals(identity.LocalUserID).(string)
	return uid
}

func fieldError(c *fiber.Ctx, status int, field, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"errors":  fiber.Map{field: []string{message}},
	})
}

// Wallets lists the wallets of the signed-in user.
func (h *Handler) Wallets(c *fiber.Ctx) error {
	sum, err := h.service.Wallet(c.UserContext(), userID(c))
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return c.JSON(fiber.Map{"wallets": []fiber.Map{}})
		}
		return err
	}
	return c.JSON(fiber.Map{"wallets": []fiber.Map{walletJSON(sum)}})
}

// ResolveRecipient looks a recipient up by email or wallet address.
func (h *Handler) ResolveRecipient(c *fiber.Ctx) error {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "Malformed request body.")
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return fieldError(c, http.StatusUnprocessableEntity, "recipient", "The recipient field is required.")
	}
	rcpt, err := h.service.Resolve(c.UserContext(), req.Recipient)
	if err != nil {
		if errors.Is(err, ErrRecipientNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"message": "Recipient not found"})
		}
		return err
	}
	return c.JSON(fiber.Map{
		"name":           rcpt.Name,
		"wallet_address": rcpt.Address,
		"type":           rcpt.Type,
		"verified":       rcpt.Verified,
	})
}

// P2P processes a wallet-to-wallet transfer. A replayed idempotency key
// answers 200 with the original transaction.
func (h *Handler) P2P(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "Malformed request body.")
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return fieldError(c, http.StatusUnprocessableEntity, "recipient", "The recipient field is required.")
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(c.Get("Idempotency-Key"))
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		SenderID:       userID(c),
		Recipient:      req.Recipient,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Note:           req.Note,
		IdempotencyKey: key,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fieldError(c, http.StatusBadRequest, "amount", "Insufficient balance")
		case errors.Is(err, ledger.ErrInvalidAmount):
			return fieldError(c, http.StatusUnprocessableEntity, "amount", "The amount must be greater than zero.")
		case errors.Is(err, ErrAmountPrecision):
			return fieldError(c, http.StatusUnprocessableEntity, "amount", "The amount may not have more than 2 decimal places.")
		case errors.Is(err, ErrRecipientNotFound):
			return fieldError(c, http.StatusBadRequest, "recipient", "Recipient not found")
		case errors.Is(err, ErrSelfTransfer):
			return fieldError(c, http.StatusBadRequest, "recipient", "You cannot send money to your own wallet")
		case errors.Is(err, ErrCurrencyMismatch):
			return fieldError(c, http.StatusUnprocessableEntity, "currency", "The currency does not match your wallet.")
		case errors.Is(err, ledger.ErrKeyReuse):
			return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{"message": "This idempotency key was already used for a different transfer."})
		case errors.Is(err, ledger.ErrWalletNotFound):
			return fiber.NewError(http.StatusForbidden, "You do not have a wallet.")
		default:
			return err
		}
	}

	status := http.StatusCreated
	message := "Transfer successful"
	if res.Replayed {
		status = http.StatusOK
		message = "Transfer already processed"
	}
	tx := transactionJSON(res.Entry)
	return c.Status(status).JSON(fiber.Map{
		"message":            message,
		"transaction":        tx,
		"sender_transaction": tx,
		"wallet_balance":     res.SenderBalance.StringFixed(2),
	})
}

// Transactions lists the signed-in user's transactions.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	page, err := h.service.History(c.UserContext(), userID(c), HistoryFilter{
		Type:    c.Query("type"),
		Status:  c.Query("status"),
		Page:    c.QueryInt("page", 1),
		PerPage: c.QueryInt("per_page", 0),
	})
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return c.JSON(fiber.Map{"transactions": []fiber.Map{}})
		}
		return err
	}

	items := make([]fiber.Map, 0, len(page.Entries))
	for _, e := range page.Entries {
		items = append(items, transactionJSON(e))
	}
	lastPage := (page.Total + page.PerPage - 1) / page.PerPage
	if lastPage == 0 {
		lastPage = 1
	}
	return c.JSON(fiber.Map{
		"transactions": items,
		"meta": fiber.Map{
			"current_page": page.Page,
			"per_page":     page.PerPage,
			"total":        page.Total,
			"last_page":    lastPage,
		},
	})
}

func walletJSON(sum Summary) fiber.Map {
	return fiber.Map{
		"id":             sum.Wallet.ID,
		"address":        sum.Wallet.Address,
		"wallet_address": sum.Wallet.Address,
		"currency":       sum.Wallet.Currency,
		"balance":        groupThousands(sum.Balance.StringFixed(2)),
	}
}

// transactionJSON reports direction only as transaction_type, the way the
// list endpoint of the production backend does.
func transactionJSON(e Entry) fiber.Map {
	p := e.Posting
	var description any
	if p.Description != "" {
		description = p.Description
	}
	party := fiber.Map{"name": e.Counterparty.Name, "address": e.Counterparty.Address}
	m := fiber.Map{
		"id":               p.TransactionID,
		"transaction_type": e.Direction,
		"amount":           p.Amount.StringFixed(2),
		"currency":         config.DefaultCurrency,
		"status":           p.Status,
		"description":      description,
		"reference":        p.ClientTxID,
		"created_at":       p.CreatedAt.Format(time.RFC3339Nano),
	}
	if e.Direction == "credit" {
		m["sender"] = party
	} else {
		m["recipient"] = party
	}
	return m
}

// groupThousands inserts commas into the integer part of a fixed-point string.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sign + b.String()
	if hasFrac {
		out += "." + frac
	}
	return out
}
