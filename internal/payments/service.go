package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/primewallet/walletclient/internal/config"
	"github.com/primewallet/walletclient/internal/identity"
	"github.com/primewallet/walletclient/internal/ledger"
	"github.com/primewallet/walletclient/internal/notification"
)

var (
	// ErrRecipientNotFound is returned when neither an email nor a wallet address matches.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrSelfTransfer rejects transfers to the sender's own wallet.
	ErrSelfTransfer = errors.New("cannot transfer to your own wallet")
	// ErrCurrencyMismatch rejects transfers in a currency the wallet does not hold.
	ErrCurrencyMismatch = errors.New("currency does not match wallet")
	// ErrAmountPrecision rejects amounts with more than two decimals.
	ErrAmountPrecision = errors.New("amount has too many decimals")
)

const treasuryName = "PrimeWallet Treasury"

// Directory looks users up.
type Directory interface {
	Get(ctx context.Context, id string) (identity.User, error)
	FindByEmail(ctx context.Context, email string) (identity.User, error)
}

// Service wires wallet ledger postings for P2P transfers.
type Service struct {
	ledger   ledger.Ledger
	wallets  *ledger.WalletBook
	users    Directory
	notifier notification.Notifier
	logger   *slog.Logger
	opening  decimal.Decimal
}

// NewService constructs a payment service. New wallets are credited with
// opening from the treasury.
func NewService(l ledger.Ledger, wallets *ledger.WalletBook, users Directory, notifier notification.Notifier, logger *slog.Logger, opening decimal.Decimal) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, wallets: wallets, users: users, notifier: notifier, logger: logger, opening: opening}
}

// Party is the other side of a posting.
type Party struct {
	Name    string
	Address string
}

// Entry is a posting seen from one wallet.
type Entry struct {
	Posting      ledger.Posting
	Direction    string
	Counterparty Party
}

// Summary is a wallet with its balance.
type Summary struct {
	Wallet  ledger.Wallet
	Balance decimal.Decimal
}

// Recipient is what a lookup reveals about a wallet owner.
type Recipient struct {
	Name     string
	Address  string
	Type     string
	Verified bool
}

// Provision opens the wallet of userID and credits the opening balance once.
func (s *Service) Provision(ctx context.Context, userID string) error {
	w, _ := s.wallets.Open(ctx, userID, config.DefaultCurrency)
	if err := s.ledger.EnsureAccount(ctx, w.AccountCode); err != nil {
		return err
	}
	if !s.opening.IsPositive() {
		return nil
	}
	if _, err := s.ledger.Mint(ctx, w.AccountCode, "opening:"+userID, s.opening); err != nil && !errors.Is(err, ledger.ErrDuplicateTransaction) {
		return fmt.Errorf("credit opening balance: %w", err)
	}
	return nil
}

// Wallet returns the wallet of userID with its balance.
func (s *Service) Wallet(ctx context.Context, userID string) (Summary, error) {
	w, err := s.wallets.ByOwner(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	balance, err := s.ledger.Balance(ctx, w.AccountCode)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Wallet: w, Balance: balance}, nil
}

// WalletView renders the wallet of userID for the login response.
func (s *Service) WalletView(ctx context.Context, userID string) (any, error) {
	sum, err := s.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return walletJSON(sum), nil
}

// Resolve finds a recipient by email or wallet address.
func (s *Service) Resolve(ctx context.Context, query string) (Recipient, error) {
	w, err := s.lookup(ctx, query)
	if err != nil {
		return Recipient{}, err
	}
	owner, err := s.users.Get(ctx, w.OwnerID)
	if err != nil {
		return Recipient{}, err
	}
	return Recipient{Name: owner.Name, Address: w.Address, Type: "wallet", Verified: owner.Verified()}, nil
}

func (s *Service) lookup(ctx context.Context, query string) (ledger.Wallet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return ledger.Wallet{}, ErrRecipientNotFound
	}
	if strings.Contains(query, "@") {
		user, err := s.users.FindByEmail(ctx, query)
		if err != nil {
			if errors.Is(err, identity.ErrUserNotFound) {
				return ledger.Wallet{}, ErrRecipientNotFound
			}
			return ledger.Wallet{}, err
		}
		w, err := s.wallets.ByOwner(ctx, user.ID)
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return ledger.Wallet{}, ErrRecipientNotFound
		}
		return w, err
	}
	w, err := s.wallets.ByAddress(ctx, query)
	if errors.Is(err, ledger.ErrWalletNotFound) {
		return ledger.Wallet{}, ErrRecipientNotFound
	}
	return w, err
}

// TransferInput captures the data needed to move funds between wallets.
type TransferInput struct {
	SenderID       string
	Recipient      string
	Amount         decimal.Decimal
	Currency       string
	Note           string
	IdempotencyKey string
}

// TransferResult describes the ledger outcome of a P2P transfer.
type TransferResult struct {
	Entry         Entry
	SenderBalance decimal.Decimal
	// Replayed is set when the idempotency key matched an earlier transfer.
	Replayed bool
}

// Transfer posts a balanced ledger entry from the sender's wallet to the
// recipient's. The same idempotency key from the same sender never posts
// twice.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if !in.Amount.IsPositive() {
		return TransferResult{}, ledger.ErrInvalidAmount
	}
	if in.Amount.Exponent() < -2 && !in.Amount.Equal(in.Amount.Round(2)) {
		return TransferResult{}, ErrAmountPrecision
	}

	from, err := s.wallets.ByOwner(ctx, in.SenderID)
	if err != nil {
		return TransferResult{}, err
	}
	if in.Currency != "" && !strings.EqualFold(in.Currency, from.Currency) {
		return TransferResult{}, ErrCurrencyMismatch
	}
	to, err := s.lookup(ctx, in.Recipient)
	if err != nil {
		return TransferResult{}, err
	}
	if to.ID == from.ID {
		return TransferResult{}, ErrSelfTransfer
	}

	posting, err := s.ledger.Transfer(ctx, ledger.TransferRequest{
		From:        from.AccountCode,
		To:          to.AccountCode,
		Kind:        ledger.KindP2P,
		ClientTxID:  in.IdempotencyKey,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Note),
	})
	replayed := errors.Is(err, ledger.ErrDuplicateTransaction)
	if err != nil && !replayed {
		return TransferResult{}, err
	}

	balance, err := s.ledger.Balance(ctx, from.AccountCode)
	if err != nil {
		return TransferResult{}, err
	}
	entry := s.entryFor(ctx, from.AccountCode, posting)

	if replayed {
		s.logger.Info("transfer replayed", slog.String("transaction_id", posting.TransactionID))
		return TransferResult{Entry: entry, SenderBalance: balance, Replayed: true}, nil
	}

	s.logger.Info("transfer posted",
		slog.String("transaction_id", posting.TransactionID),
		slog.String("from", from.Address),
		slog.String("to", to.Address),
		slog.String("amount", posting.Amount.String()))
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransferReceived,
			Destination: to.OwnerID,
			Body:        fmt.Sprintf("You received %s %s from wallet %s", posting.Amount.StringFixed(2), from.Currency, from.Address),
		})
	}
	return TransferResult{Entry: entry, SenderBalance: balance}, nil
}

// HistoryFilter narrows History.
type HistoryFilter struct {
	Type    string
	Status  string
	Page    int
	PerPage int
}

// HistoryPage is one page of entries.
type HistoryPage struct {
	Entries []Entry
	Total   int
	Page    int
	PerPage int
}

// History lists the postings of the user's wallet, newest first.
func (s *Service) History(ctx context.Context, userID string, f HistoryFilter) (HistoryPage, error) {
	w, err := s.wallets.ByOwner(ctx, userID)
	if err != nil {
		return HistoryPage{}, err
	}
	postings, err := s.ledger.Postings(ctx, w.AccountCode)
	if err != nil {
		return HistoryPage{}, err
	}

	var entries []Entry
	for _, p := range postings {
		e := s.entryFor(ctx, w.AccountCode, p)
		if f.Type != "" && !strings.EqualFold(f.Type, e.Direction) {
			continue
		}
		if f.Status != "" && !strings.EqualFold(f.Status, p.Status) {
			continue
		}
		entries = append(entries, e)
	}

	if f.PerPage <= 0 {
		f.PerPage = config.DefaultPageSize
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	page := HistoryPage{Total: len(entries), Page: f.Page, PerPage: f.PerPage}
	start := (f.Page - 1) * f.PerPage
	if start < len(entries) {
		end := min(start+f.PerPage, len(entries))
		page.Entries = entries[start:end]
	}
	return page, nil
}

func (s *Service) entryFor(ctx context.Context, account string, p ledger.Posting) Entry {
	e := Entry{Posting: p, Direction: "debit"}
	other := p.To
	if p.To == account {
		e.Direction = "credit"
		other = p.From
	}
	e.Counterparty = s.party(ctx, other)
	return e
}

func (s *Service) party(ctx context.Context, account string) Party {
	if account == ledger.TreasuryAccountCode {
		return Party{Name: treasuryName}
	}
	w, err := s.wallets.ByAccount(ctx, account)
	if err != nil {
		return Party{}
	}
	p := Party{Address: w.Address}
	if owner, err := s.users.Get(ctx, w.OwnerID); err == nil {
		p.Name = owner.Name
	}
	return p
}
