package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/primewallet/walletclient/internal/config"
	"github.com/primewallet/walletclient/internal/logging"
	"github.com/primewallet/walletclient/internal/notification"
	"github.com/primewallet/walletclient/internal/transport"
	"github.com/primewallet/walletclient/internal/wallet"
)

const (
	transferPath     = "/transactions/transfer"
	transactionsPath = "/transactions"

	idempotencyHeader = "Idempotency-Key"
)

// API is the transport surface the submitter needs.
type API interface {
	Do(ctx context.Context, req transport.Request) (transport.Response, error)
}

// BalanceSink receives the balance reported by a completed transfer.
type BalanceSink interface {
	UpdateWalletBalance(balance decimal.Decimal)
}

// CurrencySource supplies the default currency of a transfer.
type CurrencySource interface {
	WalletCurrency() string
}

// Input is what the user submits on the transfer form.
type Input struct {
	Recipient string
	Amount    decimal.Decimal
	Currency  string
	Note      string
	// IdempotencyKey is used as given when set. Otherwise every new attempt
	// gets a fresh key.
	IdempotencyKey string
}

// InputError reports transfer input rejected before anything was sent.
type InputError struct {
	FieldErrors map[string][]string
}

func (e *InputError) Error() string {
	fields := make([]string, 0, len(e.FieldErrors))
	for field := range e.FieldErrors {
		fields = append(fields, field)
	}
	return "invalid transfer input: " + strings.Join(fields, ", ")
}

// Attempt is one logical submission. Every Retry of an Attempt sends the
// same idempotency key; no other Attempt ever gets that key.
type Attempt struct {
	ID    string
	Key   string
	Tries int
	input Input
	saved bool
}

// Input returns the normalised input of the attempt.
func (a *Attempt) Input() Input { return a.input }

// Option customises a Submitter.
type Option func(*Submitter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Submitter) { s.logger = logging.Component(logger, "transfer") }
}

// WithKeyStore replaces the default in-memory key store.
func WithKeyStore(store KeyStore) Option {
	return func(s *Submitter) { s.keys = store }
}

// WithBalanceSink forwards balances from completed transfers to sink.
func WithBalanceSink(sink BalanceSink) Option {
	return func(s *Submitter) { s.balances = sink }
}

// WithCurrencySource sets where the default currency comes from.
func WithCurrencySource(src CurrencySource) Option {
	return func(s *Submitter) { s.currency = src }
}

// WithNotifier announces completed transfers.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Submitter) { s.notifier = n }
}

// WithPageSize sets the default page size of FetchTransactions.
func WithPageSize(n int) Option {
	return func(s *Submitter) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// Submitter sends transfers and keeps the local transaction list.
type Submitter struct {
	api      API
	logger   *slog.Logger
	keys     KeyStore
	balances BalanceSink
	currency CurrencySource
	notifier notification.Notifier
	pageSize int

	mu      sync.RWMutex
	records []Record
}

// NewSubmitter builds a Submitter.
func NewSubmitter(api API, opts ...Option) *Submitter {
	s := &Submitter{
		api:      api,
		logger:   logging.Discard(),
		keys:     NewMemoryKeyStore(),
		pageSize: config.DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewAttempt validates in and starts a new logical submission with a fresh
// idempotency key. The attempt is journaled in the key store until it gets a
// definitive answer, so Resume can pick it up after a restart.
func (s *Submitter) NewAttempt(ctx context.Context, in Input) (*Attempt, error) {
	in.Recipient = strings.TrimSpace(in.Recipient)
	in.Note = strings.TrimSpace(in.Note)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" && s.currency != nil {
		in.Currency = s.currency.WalletCurrency()
	}
	if in.Currency == "" {
		in.Currency = config.DefaultCurrency
	}

	fields := map[string][]string{}
	if in.Recipient == "" {
		fields["recipient"] = []string{"The recipient is required."}
	}
	if !in.Amount.IsPositive() {
		fields["amount"] = []string{"The amount must be greater than zero."}
	}
	if len(fields) > 0 {
		return nil, &InputError{FieldErrors: fields}
	}

	if in.IdempotencyKey == "" {
		in.IdempotencyKey = NewKey()
	}
	a := &Attempt{ID: uuid.NewString(), Key: in.IdempotencyKey, input: in}
	err := s.keys.Save(ctx, Pending{
		ID:             a.ID,
		IdempotencyKey: a.Key,
		Recipient:      in.Recipient,
		Amount:         in.Amount,
		Currency:       in.Currency,
		Note:           in.Note,
	})
	if err != nil {
		s.logger.Warn("key store unavailable, attempt cannot be resumed", slog.Any("error", err))
	} else {
		a.saved = true
	}
	return a, nil
}

// Resume reloads an unanswered attempt by id, keeping its idempotency key.
func (s *Submitter) Resume(ctx context.Context, id string) (*Attempt, error) {
	p, err := s.keys.Load(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	return &Attempt{
		ID:  p.ID,
		Key: p.IdempotencyKey,
		input: Input{
			Recipient:      p.Recipient,
			Amount:         p.Amount,
			Currency:       p.Currency,
			Note:           p.Note,
			IdempotencyKey: p.IdempotencyKey,
		},
		saved: true,
	}, nil
}

// Send submits in as a new logical submission. Each call is a distinct user
// intent and never shares a key with another call.
func (s *Submitter) Send(ctx context.Context, in Input) Result {
	a, err := s.NewAttempt(ctx, in)
	if err != nil {
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			return Result{Kind: KindValidation, Message: msgCheckDetails, FieldErrors: inputErr.FieldErrors}
		}
		return Result{Kind: KindUnknown, Message: msgDefault}
	}
	return s.Retry(ctx, a)
}

// Retry submits a again with the same idempotency key. A Retry issued while
// another request of a is still unanswered is refused with KindInProgress.
func (s *Submitter) Retry(ctx context.Context, a *Attempt) Result {
	if claimed, err := s.keys.Claim(ctx, a.ID); err != nil {
		s.logger.Warn("key store unavailable, sending unclaimed", slog.Any("error", err))
	} else if !claimed {
		return Result{Kind: KindInProgress, Message: msgInProgress, IdempotencyKey: a.Key}
	}
	defer s.unclaim(a)

	a.Tries++
	in := a.input

	body := map[string]any{
		"recipient":       in.Recipient,
		"amount":          json.Number(in.Amount.String()),
		"currency":        in.Currency,
		"idempotency_key": a.Key,
	}
	if in.Note != "" {
		body["note"] = in.Note
	}

	resp, err := s.api.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   transferPath,
		Body:   body,
		Header: http.Header{idempotencyHeader: []string{a.Key}},
	})
	if err != nil {
		res := classify(err)
		res.IdempotencyKey = a.Key
		if !res.Kind.Retryable() && res.Kind != KindAborted {
			s.release(a)
		}
		if res.Kind != KindAborted {
			s.logger.Warn("transfer failed",
				slog.String("kind", res.Kind.String()),
				slog.Int("status", res.Status),
				slog.String("attempt_id", a.ID),
				slog.String("idempotency_key", a.Key),
				slog.Int("tries", a.Tries))
		}
		return res
	}
	s.release(a)

	res := s.success(resp, in)
	res.IdempotencyKey = a.Key
	s.logger.Info("transfer sent", slog.String("idempotency_key", a.Key), slog.String("amount", in.Amount.String()))
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransferSent,
			Destination: in.Recipient,
			Body:        fmt.Sprintf("%s %s sent", in.Amount.StringFixed(2), in.Currency),
		})
	}
	return res
}

// The key store calls below run detached from ctx: the answer is final even
// if the caller has gone away.

func (s *Submitter) unclaim(a *Attempt) {
	if err := s.keys.Unclaim(context.Background(), a.ID); err != nil {
		s.logger.Warn("unclaim transfer attempt failed", slog.Any("error", err))
	}
}

func (s *Submitter) release(a *Attempt) {
	if !a.saved {
		return
	}
	if err := s.keys.Release(context.Background(), a.ID); err != nil {
		s.logger.Warn("release transfer attempt failed", slog.Any("error", err))
	}
}

func (s *Submitter) success(resp transport.Response, in Input) Result {
	var body struct {
		Message           string            `json:"message"`
		SenderTransaction json.RawMessage   `json:"sender_transaction"`
		Transaction       json.RawMessage   `json:"transaction"`
		WalletBalance     wallet.FlexString `json:"wallet_balance"`
	}
	_ = resp.Decode(&body)

	res := Result{Success: true, Status: resp.Status, Message: firstNonEmpty(body.Message, msgSent)}

	var txData json.RawMessage
	for _, candidate := range []json.RawMessage{body.SenderTransaction, body.Transaction, resp.Data} {
		if isObject(candidate) {
			txData = candidate
			break
		}
	}
	if txData != nil {
		if rec, err := NormalizeRecord(txData); err == nil {
			if rec.Amount.IsZero() {
				rec.Amount = in.Amount
			}
			if rec.Currency == "" {
				rec.Currency = in.Currency
			}
			s.prepend(rec)
			res.Transaction = &rec
		}
	}

	if body.WalletBalance != "" {
		if balance, err := wallet.ParseAmount(string(body.WalletBalance)); err == nil {
			res.NewBalance = &balance
			if s.balances != nil {
				s.balances.UpdateWalletBalance(balance)
			}
		}
	}
	return res
}

// Filters narrow FetchTransactions.
type Filters struct {
	Page    int
	PerPage int
	Type    Direction
	Status  string
}

// FetchTransactions loads the transaction list and replaces the local copy.
func (s *Submitter) FetchTransactions(ctx context.Context, f Filters) ([]Record, error) {
	perPage := f.PerPage
	if perPage <= 0 {
		perPage = s.pageSize
	}
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(perPage))
	if f.Page > 0 {
		query.Set("page", strconv.Itoa(f.Page))
	}
	if f.Type != "" {
		query.Set("type", string(f.Type))
	}
	if f.Status != "" {
		query.Set("status", f.Status)
	}

	resp, err := s.api.Do(ctx, transport.Request{Method: http.MethodGet, Path: transactionsPath, Query: query})
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	records, err := NormalizeRecords(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return append([]Record(nil), records...), nil
}

func (s *Submitter) prepend(rec Record) {
	s.mu.Lock()
	s.records = append([]Record{rec}, s.records...)
	s.mu.Unlock()
}

// Transactions returns the local list, newest first.
func (s *Submitter) Transactions() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records...)
}

// SentTransactions returns the debits of the local list.
func (s *Submitter) SentTransactions() []Record {
	return s.filter(Debit)
}

// ReceivedTransactions returns the credits of the local list.
func (s *Submitter) ReceivedTransactions() []Record {
	return s.filter(Credit)
}

func (s *Submitter) filter(d Direction) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.Direction == d {
			out = append(out, rec)
		}
	}
	return out
}

func isObject(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
