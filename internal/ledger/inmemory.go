package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	postings []Posting
	byClient map[string]int
	now      func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory ledger.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances: map[string]decimal.Decimal{TreasuryAccountCode: decimal.Zero},
		byClient: make(map[string]int),
		now:      time.Now,
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[code]; !exists {
		l.balances[code] = decimal.Zero
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, code string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, exists := l.balances[code]
	if !exists {
		return decimal.Zero, ErrAccountNotFound
	}
	return balance, nil
}

func (l *inMemoryLedger) Transfer(_ context.Context, req TransferRequest) (Posting, error) {
	if !req.Amount.IsPositive() {
		return Posting{}, ErrInvalidAmount
	}
	if req.Kind == "" {
		req.Kind = KindP2P
	}
	if req.ClientTxID == "" {
		req.ClientTxID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.post(req, req.From == TreasuryAccountCode)
}

func (l *inMemoryLedger) Mint(_ context.Context, code, clientTxID string, amount decimal.Decimal) (Posting, error) {
	if !amount.IsPositive() {
		return Posting{}, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.post(TransferRequest{
		From:        TreasuryAccountCode,
		To:          code,
		Kind:        KindMint,
		ClientTxID:  clientTxID,
		Amount:      amount,
		Description: "Opening balance",
	}, true)
}

// post must be called with mu held.
func (l *inMemoryLedger) post(req TransferRequest, allowOverdraft bool) (Posting, error) {
	key := req.Kind + ":" + req.From + ":" + req.ClientTxID
	if idx, exists := l.byClient[key]; exists {
		prior := l.postings[idx]
		if prior.To != req.To || !prior.Amount.Equal(req.Amount) {
			return Posting{}, ErrKeyReuse
		}
		return prior, ErrDuplicateTransaction
	}

	fromBalance, ok := l.balances[req.From]
	if !ok {
		return Posting{}, ErrAccountNotFound
	}
	toBalance, ok := l.balances[req.To]
	if !ok {
		return Posting{}, ErrAccountNotFound
	}
	if !allowOverdraft && fromBalance.LessThan(req.Amount) {
		return Posting{}, ErrInsufficientFunds
	}

	fromBalance = fromBalance.Sub(req.Amount)
	toBalance = toBalance.Add(req.Amount)
	l.balances[req.From] = fromBalance
	l.balances[req.To] = toBalance

	p := Posting{
		TransactionID: uuid.NewString(),
		Kind:          req.Kind,
		ClientTxID:    req.ClientTxID,
		From:          req.From,
		To:            req.To,
		Amount:        req.Amount,
		FromBalance:   fromBalance,
		ToBalance:     toBalance,
		Description:   req.Description,
		Status:        StatusCompleted,
		CreatedAt:     l.now().UTC(),
	}
	l.byClient[key] = len(l.postings)
	l.postings = append(l.postings, p)
	return p, nil
}

func (l *inMemoryLedger) Postings(_ context.Context, code string) ([]Posting, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, exists := l.balances[code]; !exists {
		return nil, ErrAccountNotFound
	}
	var out []Posting
	for i := len(l.postings) - 1; i >= 0; i-- {
		if p := l.postings[i]; p.From == code || p.To == code {
			out = append(out, p)
		}
	}
	return out, nil
}
