package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/primewallet/walletclient/internal/transport"
	"github.com/primewallet/walletclient/internal/wallet"
)

type walletCall struct {
	done chan struct{}
	err  error
}

// FetchWallet refreshes the wallet snapshot. While a fetch is in flight,
// other callers wait for it and receive the same cached snapshot instead of
// issuing their own request. A failed fetch keeps the previous snapshot.
//
// The shared request does not inherit any caller's cancellation: a caller
// that gives up gets an AbortError while the others still get the result.
func (m *Manager) FetchWallet(ctx context.Context) (*wallet.Wallet, error) {
	m.walletMu.Lock()
	call := m.walletCall
	if call == nil {
		call = &walletCall{done: make(chan struct{})}
		m.walletCall = call
		go m.runWalletFetch(context.WithoutCancel(ctx), call)
	}
	m.walletMu.Unlock()

	select {
	case <-call.done:
		return m.CurrentWallet(), call.err
	case <-ctx.Done():
		return m.CurrentWallet(), &transport.AbortError{URL: walletsPath, Err: ctx.Err()}
	}
}

func (m *Manager) runWalletFetch(ctx context.Context, call *walletCall) {
	m.mu.RLock()
	epoch := m.epoch
	m.mu.RUnlock()

	w, err := m.loadWallet(ctx)
	if err == nil && w != nil {
		m.mu.Lock()
		if m.epoch == epoch {
			m.wallet = w
		}
		m.mu.Unlock()
	}
	if err != nil && !transport.IsAbort(err) {
		m.logger.Warn("fetch wallet failed", slog.Any("error", err))
	}

	m.walletMu.Lock()
	m.walletCall = nil
	m.walletMu.Unlock()
	call.err = err
	close(call.done)
}

func (m *Manager) loadWallet(ctx context.Context) (*wallet.Wallet, error) {
	resp, err := m.api.Do(ctx, transport.Request{Method: http.MethodGet, Path: walletsPath})
	if err != nil {
		return nil, fmt.Errorf("fetch wallet: %w", err)
	}
	w, err := wallet.ParseWallet(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("fetch wallet: %w", err)
	}
	return w, nil
}

// UpdateWalletBalance records a balance reported by another call, such as a
// completed transfer. It is a no-op without a wallet snapshot.
func (m *Manager) UpdateWalletBalance(balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wallet != nil {
		m.wallet.Balance = balance
	}
}

// WalletCurrency returns the wallet's currency, or "" without a snapshot.
func (m *Manager) WalletCurrency() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.wallet == nil {
		return ""
	}
	return m.wallet.Currency
}
