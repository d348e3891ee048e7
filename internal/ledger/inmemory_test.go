package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(t *testing.T, seed string) Ledger {
	t.Helper()
	l := NewInMemory()
	ctx := context.Background()
	for _, code := range []string{"wallet:a", "wallet:b"} {
		if err := l.EnsureAccount(ctx, code); err != nil {
			t.Fatalf("ensure account %s: %v", code, err)
		}
	}
	SeedBalance(l, "wallet:a", dec(seed))
	return l
}

func TestInMemoryLedger_TransferMaintainsBalance(t *testing.T) {
	l := setup(t, "10000")
	ctx := context.Background()

	res, err := l.Transfer(ctx, TransferRequest{From: "wallet:a", To: "wallet:b", ClientTxID: "client-1", Amount: dec("1500.50")})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if !res.FromBalance.Equal(dec("8499.50")) {
		t.Fatalf("expected from balance 8499.50, got %s", res.FromBalance)
	}
	if !res.ToBalance.Equal(dec("1500.50")) {
		t.Fatalf("expected to balance 1500.50, got %s", res.ToBalance)
	}
	if res.Kind != KindP2P || res.Status != StatusCompleted {
		t.Fatalf("unexpected posting %+v", res)
	}

	a, _ := l.Balance(ctx, "wallet:a")
	b, _ := l.Balance(ctx, "wallet:b")
	if total := a.Add(b); !total.Equal(dec("10000")) {
		t.Fatalf("ledger not balanced, total=%s", total)
	}
}

func TestInMemoryLedger_DuplicateTransaction(t *testing.T) {
	l := setup(t, "5000")
	ctx := context.Background()
	req := TransferRequest{From: "wallet:a", To: "wallet:b", ClientTxID: "dup", Amount: dec("500")}

	first, err := l.Transfer(ctx, req)
	if err != nil {
		t.Fatalf("initial transfer failed: %v", err)
	}
	again, err := l.Transfer(ctx, req)
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if again.TransactionID != first.TransactionID {
		t.Fatalf("replay returned a different posting")
	}
	if bal, _ := l.Balance(ctx, "wallet:a"); !bal.Equal(dec("4500")) {
		t.Fatalf("replay moved money, balance=%s", bal)
	}

	req.Amount = dec("600")
	if _, err := l.Transfer(ctx, req); !errors.Is(err, ErrKeyReuse) {
		t.Fatalf("expected key reuse error, got %v", err)
	}
}

func TestInMemoryLedger_InsufficientFunds(t *testing.T) {
	l := setup(t, "10")
	ctx := context.Background()
	if _, err := l.Transfer(ctx, TransferRequest{From: "wallet:a", To: "wallet:b", Amount: dec("10.01")}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := l.Transfer(ctx, TransferRequest{From: "wallet:a", To: "wallet:b", Amount: decimal.Zero}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := l.Transfer(ctx, TransferRequest{From: "wallet:a", To: "wallet:zz", Amount: dec("1")}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected missing account, got %v", err)
	}
}

func TestInMemoryLedger_ConcurrentTransfers(t *testing.T) {
	l := setup(t, "100000")
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txID := fmt.Sprintf("tx-%d", i)
			if _, err := l.Transfer(ctx, TransferRequest{From: "wallet:a", To: "wallet:b", ClientTxID: txID, Amount: dec("500")}); err != nil {
				t.Errorf("transfer %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	a, _ := l.Balance(ctx, "wallet:a")
	b, _ := l.Balance(ctx, "wallet:b")
	if !a.Add(b).Equal(dec("100000")) || !b.Equal(dec("5000")) {
		t.Fatalf("ledger not balanced after concurrency, a=%s b=%s", a, b)
	}
	postings, err := l.Postings(ctx, "wallet:b")
	if err != nil || len(postings) != workers {
		t.Fatalf("expected %d postings, got %d (%v)", workers, len(postings), err)
	}
}

func TestInMemoryLedger_MintFromTreasury(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	if err := l.EnsureAccount(ctx, "wallet:a"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}

	res, err := l.Mint(ctx, "wallet:a", "opening:a", dec("2000"))
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if !res.ToBalance.Equal(dec("2000")) || res.Kind != KindMint {
		t.Fatalf("unexpected mint posting %+v", res)
	}
	if _, err := l.Mint(ctx, "wallet:a", "opening:a", dec("2000")); !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate mint error, got %v", err)
	}
	treasury, _ := l.Balance(ctx, TreasuryAccountCode)
	if !treasury.Equal(dec("-2000")) {
		t.Fatalf("expected treasury -2000, got %s", treasury)
	}
}

func TestWalletBook(t *testing.T) {
	book := NewWalletBook()
	ctx := context.Background()

	w, created := book.Open(ctx, "user-1", "NGN")
	if !created || w.ID != 1 || len(w.Address) != 12 || w.AccountCode != "wallet:"+w.Address {
		t.Fatalf("unexpected wallet %+v created=%v", w, created)
	}
	if again, created := book.Open(ctx, "user-1", "NGN"); created || again.Address != w.Address {
		t.Fatalf("second open must return the same wallet")
	}
	if got, err := book.ByAddress(ctx, " "+w.Address+" "); err != nil || got.OwnerID != "user-1" {
		t.Fatalf("by address: %+v %v", got, err)
	}
	if got, err := book.ByAccount(ctx, w.AccountCode); err != nil || got.ID != w.ID {
		t.Fatalf("by account: %+v %v", got, err)
	}
	if _, err := book.ByOwner(ctx, "nobody"); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
