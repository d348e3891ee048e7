package recipient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/primewallet/walletclient/internal/logging"
	"github.com/primewallet/walletclient/internal/transport"
)

const (
	resolvePath = "/resolve-recipient"

	msgNotFound = "Recipient not found"
	msgFailed   = "Failed to resolve recipient"
)

// Status is the state of the current lookup.
type Status int

const (
	StatusIdle Status = iota
	StatusResolving
	StatusResolved
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusResolving:
		return "resolving"
	case StatusResolved:
		return "resolved"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Recipient is a resolved transfer destination.
type Recipient struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Type     string `json:"type"`
	Verified bool   `json:"verified"`
}

// Lookup is the resolver state shown next to the recipient field.
type Lookup struct {
	Query  string
	Status Status
	Result *Recipient
	Err    string
}

// Error is returned by Resolve when the lookup failed.
type Error struct {
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// API is the transport surface the resolver needs.
type API interface {
	Do(ctx context.Context, req transport.Request) (transport.Response, error)
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logging.Component(logger, "recipient") }
}

// Resolver looks recipients up as the user types. Each call supersedes the
// previous one: the older request is cancelled and its response, should it
// still arrive, is discarded.
type Resolver struct {
	api    API
	logger *slog.Logger

	mu     sync.Mutex
	state  Lookup
	gen    uint64
	cancel context.CancelFunc
}

// NewResolver builds a Resolver.
func NewResolver(api API, opts ...Option) *Resolver {
	r := &Resolver{api: api, logger: logging.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks query up. A cancelled lookup, whether superseded or
// cancelled by the caller, returns (nil, nil) and writes no error.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Recipient, error) {
	query = strings.TrimSpace(query)

	r.mu.Lock()
	r.gen++
	gen := r.gen
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if query == "" {
		r.state = Lookup{Status: StatusIdle}
		r.mu.Unlock()
		return nil, nil
	}
	callCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.state = Lookup{Query: query, Status: StatusResolving}
	r.mu.Unlock()
	defer cancel()

	resp, err := r.api.Do(callCtx, transport.Request{
		Method: http.MethodPost,
		Path:   resolvePath,
		Body:   map[string]string{"recipient": query},
	})

	var (
		result  *Recipient
		failure *Error
	)
	switch {
	case err != nil && (transport.IsAbort(err) || errors.Is(err, context.Canceled)):
	case err != nil:
		failure = &Error{Message: msgFailed, Status: transport.StatusOf(err), Err: err}
		var apiErr *transport.APIError
		if errors.As(err, &apiErr) && apiErr.Message() != "" {
			failure.Message = apiErr.Message()
		}
	default:
		result, err = decodeRecipient(resp.Data)
		if err != nil {
			failure = &Error{Message: msgNotFound, Status: resp.Status, Err: err}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		r.logger.Debug("discarding superseded lookup", slog.String("query", query))
		return nil, nil
	}
	r.cancel = nil
	switch {
	case failure != nil:
		r.state.Status = StatusFailed
		r.state.Err = failure.Message
		r.logger.Debug("recipient lookup failed", slog.String("query", query), slog.String("error", failure.Message))
		return nil, failure
	case result != nil:
		r.state.Status = StatusResolved
		r.state.Result = result
		cp := *result
		return &cp, nil
	default:
		r.state.Status = StatusIdle
		return nil, nil
	}
}

// State returns a copy of the current lookup.
func (r *Resolver) State() Lookup {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state
	if s.Result != nil {
		cp := *s.Result
		s.Result = &cp
	}
	return s
}

// Cancel aborts the outstanding lookup, if any.
func (r *Resolver) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

var errEmptyBody = errors.New("empty recipient response")

func decodeRecipient(data json.RawMessage) (*Recipient, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" || trimmed == `""` || trimmed == "{}" {
		return nil, errEmptyBody
	}
	var body struct {
		Name          string `json:"name"`
		WalletAddress string `json:"wallet_address"`
		Address       string `json:"address"`
		Type          string `json:"type"`
		Verified      bool   `json:"verified"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	address := body.WalletAddress
	if address == "" {
		address = body.Address
	}
	return &Recipient{
		Name:     body.Name,
		Address:  address,
		Type:     body.Type,
		Verified: body.Verified,
	}, nil
}
