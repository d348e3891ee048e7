package routes

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/primewallet/walletclient/internal/config"
	"github.com/primewallet/walletclient/internal/identity"
	"github.com/primewallet/walletclient/internal/ledger"
	"github.com/primewallet/walletclient/internal/logging"
	"github.com/primewallet/walletclient/internal/middleware"
	"github.com/primewallet/walletclient/internal/notification"
	"github.com/primewallet/walletclient/internal/payments"
)

const sessionTTL = 2 * time.Hour

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	Cache    *redis.Client
	Logger   *slog.Logger
	Notifier notification.Notifier
}

// Setup configures middlewares and all sandbox routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		return fmt.Errorf("the sandbox backend keeps everything in memory and refuses APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(logging.Component(d.Logger, "notification"))
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(logging.Component(d.Logger, "http"), "/healthz"))
	if d.Cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}

	RegisterHealthRoutes(app, d)

	// Services and handlers
	sessions := identity.NewSessions(sessionTTL)
	identitySvc := identity.NewService(identity.NewMemoryRepository())
	paymentSvc := payments.NewService(
		ledger.NewInMemory(),
		ledger.NewWalletBook(),
		identitySvc,
		d.Notifier,
		logging.Component(d.Logger, "payments"),
		d.Cfg.OpeningBalance,
	)
	identityHandler := identity.NewHandler(identitySvc, sessions, paymentSvc, logging.Component(d.Logger, "identity")).
		SecureCookies(false)
	paymentHandler := payments.NewHandler(paymentSvc)

	app.Get("/sanctum/csrf-cookie", middleware.IssueCSRF(false))

	chain := []fiber.Handler{middleware.Session(sessions), middleware.CSRF()}
	if d.Cache != nil {
		chain = append(chain, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, logging.Component(d.Logger, "idempotency")))
	}
	api := app.Group("/api", chain...)
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	limiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttemptsPerMinute, logging.Component(d.Logger, "ratelimit"))
	RegisterAuthRoutes(api, identityHandler, limiter)

	requireAuth := middleware.RequireAuth()
	RegisterWalletRoutes(api, paymentHandler, requireAuth)
	RegisterPaymentRoutes(api, paymentHandler, requireAuth)

	d.Logger.Info("sandbox routes ready",
		slog.Bool("redis", d.Cache != nil),
		slog.String("opening_balance", d.Cfg.OpeningBalance.String()))
	return nil
}
