package transfer

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/primewallet/walletclient/internal/transport"
)

const (
	msgSent          = "Transfer successful"
	msgCheckDetails  = "Please check the transfer details."
	msgSessionExpiry = "Your session has expired. Please log in again."
	msgForbidden     = "You don't have permission to perform this action."
	msgInvalid       = "Invalid transaction data. Please check and try again."
	msgRateLimited   = "Too many requests. Please wait a moment and try again."
	msgServer        = "Server error. Please try again later."
	msgNetwork       = "Network error. Please check your connection and try again."
	msgInProgress    = "This transfer is still being processed. Please wait before trying again."
	msgDefault       = "Unable to send money. Please try again."
)

// FailureKind classifies a failed transfer.
type FailureKind int

const (
	KindNone FailureKind = iota
	KindValidation
	KindNetwork
	KindUnauthenticated
	KindPermission
	KindRateLimited
	KindServer
	// KindAborted is a caller cancellation. It carries no message and is
	// never shown as an error.
	KindAborted
	// KindInProgress means another request of the same attempt has no
	// answer yet.
	KindInProgress
	KindUnknown
)

func (k FailureKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindPermission:
		return "permission"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindAborted:
		return "aborted"
	case KindInProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// Retryable reports whether resubmitting the same attempt may succeed.
func (k FailureKind) Retryable() bool {
	return k == KindNetwork || k == KindServer || k == KindRateLimited || k == KindInProgress
}

// Result is what the UI gets back from Send and Retry.
type Result struct {
	Success     bool
	Transaction *Record
	NewBalance  *decimal.Decimal

	Kind        FailureKind
	Status      int
	Message     string
	FieldErrors map[string][]string

	IdempotencyKey string
}

// classify turns a transport error into a failed Result with a message fit
// for the transfer form.
func classify(err error) Result {
	if transport.IsAbort(err) {
		return Result{Kind: KindAborted}
	}
	if transport.IsNetwork(err) {
		return Result{Kind: KindNetwork, Message: msgNetwork}
	}
	var apiErr *transport.APIError
	if !errors.As(err, &apiErr) {
		return Result{Kind: KindUnknown, Message: msgDefault}
	}

	res := Result{Status: apiErr.Status, FieldErrors: apiErr.FieldErrors()}
	switch status := apiErr.Status; {
	case status == http.StatusUnauthorized:
		res.Kind, res.Message = KindUnauthenticated, msgSessionExpiry
	case status == http.StatusForbidden:
		res.Kind, res.Message = KindPermission, msgForbidden
	case status == http.StatusBadRequest:
		res.Kind = KindValidation
		res.Message = firstNonEmpty(firstField(res.FieldErrors, "amount"), firstField(res.FieldErrors, "recipient"), apiErr.Message(), msgDefault)
	case status == http.StatusUnprocessableEntity:
		res.Kind = KindValidation
		res.Message = firstNonEmpty(singleFieldError(res.FieldErrors), apiErr.Message(), msgInvalid)
	case status == http.StatusConflict:
		res.Kind, res.Message = KindInProgress, msgInProgress
	case status == http.StatusTooManyRequests:
		res.Kind, res.Message = KindRateLimited, msgRateLimited
	case status >= http.StatusInternalServerError:
		res.Kind = KindServer
		res.Message = firstNonEmpty(rawMessage(apiErr), apiErr.Message(), msgServer)
	default:
		res.Kind = KindUnknown
		res.Message = firstNonEmpty(apiErr.Message(), msgDefault)
	}
	return res
}

func firstField(fields map[string][]string, name string) string {
	if msgs := fields[name]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func singleFieldError(fields map[string][]string) string {
	if len(fields) != 1 {
		return ""
	}
	for _, msgs := range fields {
		if len(msgs) > 0 {
			return msgs[0]
		}
	}
	return ""
}

// rawMessage reads the "raw" diagnostic some server errors carry.
func rawMessage(apiErr *transport.APIError) string {
	var body struct {
		Raw json.RawMessage `json:"raw"`
	}
	if err := apiErr.Decode(&body); err != nil {
		return ""
	}
	var raw string
	if err := json.Unmarshal(body.Raw, &raw); err != nil {
		return ""
	}
	return raw
}
