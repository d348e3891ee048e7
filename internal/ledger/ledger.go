package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the provided client transaction identifier
	// already exists and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrKeyReuse means a client transaction identifier was reused for a
	// different posting.
	ErrKeyReuse = errors.New("client transaction id reused with different parameters")

	// ErrAccountNotFound is returned for postings against unknown accounts.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidAmount rejects zero and negative postings.
	ErrInvalidAmount = errors.New("amount must be positive")
)

const (
	// StatusCompleted is the only status an in-memory posting can have.
	StatusCompleted = "completed"
	// TreasuryAccountCode funds opening balances and is allowed to go negative.
	TreasuryAccountCode = "treasury:sandbox"

	// KindP2P marks wallet to wallet transfers.
	KindP2P = "p2p"
	// KindMint marks treasury credits.
	KindMint = "mint"
)

// Posting is one balanced movement between two accounts.
type Posting struct {
	TransactionID string
	Kind          string
	ClientTxID    string
	From          string
	To            string
	Amount        decimal.Decimal
	FromBalance   decimal.Decimal
	ToBalance     decimal.Decimal
	Description   string
	Status        string
	CreatedAt     time.Time
}

// TransferRequest asks for a posting from one account to another.
type TransferRequest struct {
	From        string
	To          string
	Kind        string
	ClientTxID  string
	Amount      decimal.Decimal
	Description string
}

// Ledger defines the contract implemented by ledger backends.
type Ledger interface {
	EnsureAccount(ctx context.Context, code string) error
	Balance(ctx context.Context, code string) (decimal.Decimal, error)
	// Transfer moves funds. Replaying the same request returns the original
	// posting together with ErrDuplicateTransaction.
	Transfer(ctx context.Context, req TransferRequest) (Posting, error)
	// Mint credits code from the treasury.
	Mint(ctx context.Context, code, clientTxID string, amount decimal.Decimal) (Posting, error)
	// Postings lists the postings touching code, newest first.
	Postings(ctx context.Context, code string) ([]Posting, error)
}
