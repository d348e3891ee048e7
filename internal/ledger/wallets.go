package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrWalletNotFound is returned when no wallet matches.
var ErrWalletNotFound = errors.New("wallet not found")

// Wallet binds a user to a ledger account.
type Wallet struct {
	ID          int64
	OwnerID     string
	Address     string
	AccountCode string
	Currency    string
	CreatedAt   time.Time
}

// WalletBook indexes wallets by owner, address and account.
type WalletBook struct {
	mu        sync.RWMutex
	nextID    int64
	byOwner   map[string]Wallet
	byAddress map[string]string
	byAccount map[string]string
}

// NewWalletBook creates an empty book.
func NewWalletBook() *WalletBook {
	return &WalletBook{
		byOwner:   make(map[string]Wallet),
		byAddress: make(map[string]string),
		byAccount: make(map[string]string),
	}
}

// Open returns the wallet of ownerID, creating it on first use.
func (b *WalletBook) Open(_ context.Context, ownerID, currency string) (Wallet, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.byOwner[ownerID]; ok {
		return w, false
	}
	b.nextID++
	address := "PW" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	w := Wallet{
		ID:          b.nextID,
		OwnerID:     ownerID,
		Address:     address,
		AccountCode: "wallet:" + address,
		Currency:    currency,
		CreatedAt:   time.Now().UTC(),
	}
	b.byOwner[ownerID] = w
	b.byAddress[address] = ownerID
	b.byAccount[w.AccountCode] = ownerID
	return w, true
}

// ByOwner returns the wallet of a user.
func (b *WalletBook) ByOwner(_ context.Context, ownerID string) (Wallet, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.byOwner[ownerID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

// ByAddress finds a wallet by its public address, ignoring case.
func (b *WalletBook) ByAddress(_ context.Context, address string) (Wallet, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	owner, ok := b.byAddress[strings.ToUpper(strings.TrimSpace(address))]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return b.byOwner[owner], nil
}

// ByAccount finds the wallet behind a ledger account code.
func (b *WalletBook) ByAccount(_ context.Context, code string) (Wallet, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	owner, ok := b.byAccount[code]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return b.byOwner[owner], nil
}
