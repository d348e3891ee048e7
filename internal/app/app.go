package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/primewallet/walletclient/internal/config"
	"github.com/primewallet/walletclient/internal/history"
	"github.com/primewallet/walletclient/internal/infra"
	"github.com/primewallet/walletclient/internal/logging"
	"github.com/primewallet/walletclient/internal/notification"
	"github.com/primewallet/walletclient/internal/recipient"
	"github.com/primewallet/walletclient/internal/session"
	"github.com/primewallet/walletclient/internal/transfer"
	"github.com/primewallet/walletclient/internal/transport"
)

// Deps are the optional collaborators of an App.
type Deps struct {
	// Cache pins idempotency keys across restarts when set.
	Cache *redis.Client
	// DB holds transaction history when set.
	DB         *pgxpool.Pool
	HTTPClient *http.Client
	Notifier   notification.Notifier
}

// App holds the single instance of every client component.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Transport  *transport.Client
	Session    *session.Manager
	Recipients *recipient.Resolver
	Transfers  *transfer.Submitter
	History    history.Store
	Syncer     *history.Syncer

	pgHistory *history.PostgresStore
	closers   []func()
}

// New wires the components together. It performs no I/O.
func New(cfg config.Config, logger *slog.Logger, deps Deps) (*App, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logging.Component(logger, "notification"))
	}

	client, err := transport.New(transport.Options{
		BaseURL:    cfg.BaseURL,
		Scheme:     transport.Scheme(cfg.CredentialScheme),
		Timeout:    cfg.APITimeout,
		Logger:     logger,
		HTTPClient: deps.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}

	sess := session.NewManager(client, session.WithLogger(logger), session.WithNotifier(notifier))

	var keys transfer.KeyStore = transfer.NewMemoryKeyStore()
	if deps.Cache != nil {
		keys = transfer.NewRedisKeyStore(deps.Cache, cfg.IdempotencyTTL)
	}
	transfers := transfer.NewSubmitter(client,
		transfer.WithLogger(logger),
		transfer.WithKeyStore(keys),
		transfer.WithBalanceSink(sess),
		transfer.WithCurrencySource(sess),
		transfer.WithNotifier(notifier),
		transfer.WithPageSize(cfg.PageSize),
	)

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Transport:  client,
		Session:    sess,
		Recipients: recipient.NewResolver(client, recipient.WithLogger(logger)),
		Transfers:  transfers,
	}
	if deps.DB != nil {
		a.pgHistory = history.NewPostgresStore(deps.DB)
		a.History = a.pgHistory
	} else {
		a.History = history.NewMemoryStore()
	}
	a.Syncer = history.NewSyncer(transfers, a.History, logger)
	return a, nil
}

// Open connects the optional Redis and Postgres backends named by cfg and
// builds the App. Close releases them.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, err
	}

	a, err := New(cfg, logger, Deps{Cache: cache, DB: db})
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		if db != nil {
			db.Close()
		}
		return nil, err
	}
	if cache != nil {
		a.closers = append(a.closers, func() {
			if err := cache.Close(); err != nil {
				a.Logger.Warn("close redis", slog.Any("error", err))
			}
		})
	}
	if db != nil {
		a.closers = append(a.closers, db.Close)
	}
	return a, nil
}

// Start runs the startup sequence: prepare history storage, then resolve
// the session once.
func (a *App) Start(ctx context.Context) error {
	if a.pgHistory != nil {
		if err := a.pgHistory.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	if err := a.Session.EnsureSession(ctx); err != nil {
		return fmt.Errorf("startup session check: %w", err)
	}
	a.Logger.Info("client started",
		slog.String("base_url", a.Config.BaseURL),
		slog.String("session", a.Session.Status().String()))
	return nil
}

// Close releases the backends opened by Open.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
