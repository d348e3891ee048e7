package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/primewallet/walletclient/internal/logging"
	"github.com/primewallet/walletclient/internal/notification"
	"github.com/primewallet/walletclient/internal/transport"
	"github.com/primewallet/walletclient/internal/wallet"
)

const (
	userPath     = "/user"
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	logoutPath   = "/auth/logout"
	resendPath   = "/email/resend"
	walletsPath  = "/wallets"

	checkKey = "session"
)

// Status is the authentication state of the session.
type Status int

const (
	StatusUnchecked Status = iota
	StatusChecking
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusUnchecked:
		return "unchecked"
	case StatusChecking:
		return "checking"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// API is the slice of the transport the session manager drives.
type API interface {
	Do(ctx context.Context, req transport.Request) (transport.Response, error)
	PrimeCSRF(ctx context.Context) error
	OnUnauthorized(fn func(err error))
	SetToken(token string)
	ResetCredentials()
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	Status Status
	User   *wallet.User
	Wallet *wallet.Wallet
}

// Option customises a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logging.Component(logger, "session") }
}

// WithNotifier sets the notifier told about forced logouts.
func WithNotifier(n notification.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// Manager owns the session. It is the only writer of user, wallet and status.
type Manager struct {
	api      API
	logger   *slog.Logger
	notifier notification.Notifier

	mu      sync.RWMutex
	status  Status
	user    *wallet.User
	wallet  *wallet.Wallet
	checked bool
	view    string
	// epoch advances whenever local state is discarded or replaced by a
	// login, so late responses from before the change are dropped.
	epoch uint64

	checks singleflight.Group

	walletMu   sync.Mutex
	walletCall *walletCall

	subsMu  sync.Mutex
	subs    map[int]func(ForcedLogout)
	nextSub int
}

// NewManager builds a Manager and registers it as the transport's
// unauthorized handler.
func NewManager(api API, opts ...Option) *Manager {
	m := &Manager{
		api:    api,
		logger: logging.Discard(),
		subs:   make(map[int]func(ForcedLogout)),
	}
	for _, opt := range opts {
		opt(m)
	}
	api.OnUnauthorized(m.handleUnauthorized)
	return m
}

// EnsureSession resolves whether the backend recognises the session. Concurrent
// callers share one identity request; once a check has completed it returns
// without touching the network.
func (m *Manager) EnsureSession(ctx context.Context) error {
	m.mu.RLock()
	done := m.checked && m.status != StatusChecking
	m.mu.RUnlock()
	if done {
		return nil
	}

	ch := m.checks.DoChan(checkKey, func() (any, error) {
		return nil, m.check(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) check(ctx context.Context) error {
	m.mu.Lock()
	if m.checked && m.status != StatusChecking {
		m.mu.Unlock()
		return nil
	}
	epoch := m.epoch
	m.status = StatusChecking
	m.mu.Unlock()

	user, err := m.fetchUser(ctx)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return nil
	}
	m.checked = true
	if err != nil {
		m.user = nil
		m.wallet = nil
		m.status = StatusAnonymous
		m.mu.Unlock()
		if errors.Is(err, transport.ErrUnauthenticated) {
			m.logger.Debug("no active session")
			return nil
		}
		m.logger.Warn("session check failed", slog.Any("error", err))
		return fmt.Errorf("check session: %w", err)
	}
	m.user = user
	m.status = StatusAuthenticated
	m.mu.Unlock()

	m.logger.Info("session restored", slog.String("user_id", user.ID))
	if _, err := m.FetchWallet(ctx); err != nil {
		m.logger.Warn("wallet fetch after session check failed", slog.Any("error", err))
	}
	return nil
}

// fetchUser asks the identity endpoint who we are. 401 is an expected
// answer here, so it never reaches the unauthorized handler.
func (m *Manager) fetchUser(ctx context.Context) (*wallet.User, error) {
	resp, err := m.api.Do(ctx, transport.Request{
		Method:               http.MethodGet,
		Path:                 userPath,
		SuppressUnauthorized: true,
	})
	if err != nil {
		return nil, err
	}
	return wallet.ParseUser(resp.Data)
}

// IsAuthenticated reports whether a user is signed in.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status == StatusAuthenticated
}

// Status returns the current state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (m *Manager) CurrentUser() *wallet.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user.Clone()
}

// CurrentWallet returns a copy of the wallet snapshot, or nil.
func (m *Manager) CurrentWallet() *wallet.Wallet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.wallet.Clone()
}

// Snapshot returns a copy of the whole session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{Status: m.status, User: m.user.Clone(), Wallet: m.wallet.Clone()}
}

// clear discards local state and moves to status.
func (m *Manager) clear(status Status, checked bool) {
	m.mu.Lock()
	m.user = nil
	m.wallet = nil
	m.status = status
	m.checked = checked
	m.epoch++
	m.mu.Unlock()
}
