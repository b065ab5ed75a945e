package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletledger/internal/auth"
	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/httpx"
	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/middleware"
	"github.com/congo-pay/walletledger/internal/reconcile"
	"github.com/congo-pay/walletledger/internal/storage"
	"github.com/congo-pay/walletledger/internal/transfer"
	"github.com/congo-pay/walletledger/internal/wallet"
)

const loginAttemptsPerMinute = 5

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Store  storage.Store
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Store == nil {
		return fmt.Errorf("ledger store is required")
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	identitySvc := identity.NewService(identityRepo, d.Logger)
	authSvc := auth.NewService(d.Cfg, identityRepo)

	walletSvc := wallet.NewService(d.Store, d.Logger)
	executor := transfer.NewExecutor(d.Store, transfer.Config{
		StrictLedgerCheck: d.Cfg.StrictLedgerCheck,
		SystemOverdraft:   d.Cfg.SystemOverdraft,
	}, d.Logger)
	checker := reconcile.NewChecker(d.Store, d.Logger)

	identityHandler := identity.NewHandler(identitySvc)
	authHandler := auth.NewHandler(identitySvc, authSvc)
	walletHandler := wallet.NewHandler(walletSvc)
	transferHandler := transfer.NewHandler(executor)
	reconcileHandler := reconcile.NewHandler(checker)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": httpx.RequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes are registered before the protected group so its
	// middleware never runs for them.
	jwtmw := middleware.JWTAuth(authSvc)
	RegisterIdentityRoutes(api, identityHandler)
	loginLimiter := middleware.RateLimit(d.Cache, "login", loginAttemptsPerMinute, middleware.ByEmailOrIP, d.Logger)
	RegisterAuthRoutes(api, authHandler, loginLimiter, jwtmw)

	// Protected routes
	protected := api.Group("", jwtmw)
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	protected.Get("/me", identityHandler.Me)
	RegisterWalletRoutes(protected, walletHandler, transferHandler)
	transferLimiter := middleware.RateLimit(d.Cache, "transfer", d.Cfg.TransferRateLimit, middleware.ByActor, d.Logger)
	RegisterTransactionRoutes(protected, transferHandler, transferLimiter)
	RegisterReconcileRoutes(protected, reconcileHandler)

	return nil
}
