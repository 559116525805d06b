package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet/internal/config"
	"github.com/congo-pay/wallet/internal/funding"
	"github.com/congo-pay/wallet/internal/ledger"
	"github.com/congo-pay/wallet/internal/middleware"
	"github.com/congo-pay/wallet/internal/notification"
	"github.com/congo-pay/wallet/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Registry receives the service collectors. A fresh registry is used when nil.
	Registry *prometheus.Registry
	// Store overrides the backend selected from Cfg.
	Store ledger.Store
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	store, err := selectStore(d)
	if err != nil {
		return err
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
		d.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	backend := ledger.Backend(store)
	RegisterHealthRoutes(app, d, backend)
	RegisterMetricsRoute(app, d.Registry)

	svc := wallet.NewService(
		store,
		selectGateway(d.Cfg),
		notification.NewLoggerNotifier(d.Logger),
		d.Logger,
		wallet.NewMetrics(d.Registry),
	)
	RegisterWalletRoutes(app.Group("/v1"), wallet.NewHandler(svc))

	d.Logger.Info("routes ready", "store", backend, "gateway", gatewayName(d.Cfg))
	return nil
}

func selectStore(d Deps) (ledger.Store, error) {
	if d.Store != nil {
		return d.Store, nil
	}
	switch d.Cfg.StoreBackend {
	case config.StorePostgres:
		if d.DB == nil {
			return nil, fmt.Errorf("database is required for STORE_BACKEND=%s", d.Cfg.StoreBackend)
		}
		return ledger.NewPostgresStore(d.DB), nil
	case config.StoreRedis:
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required for STORE_BACKEND=%s", d.Cfg.StoreBackend)
		}
		return ledger.NewRedisStore(d.Cache), nil
	case config.StoreMemory, "":
		return ledger.NewInMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", d.Cfg.StoreBackend)
	}
}

func selectGateway(cfg config.Config) funding.Gateway {
	if cfg.GatewayChargesURL != "" {
		return funding.NewHTTPGateway(cfg.GatewayChargesURL, cfg.GatewayTimeout)
	}
	return funding.NewStaticGateway(cfg.GatewayMinAmount)
}

func gatewayName(cfg config.Config) string {
	if cfg.GatewayChargesURL != "" {
		return "http"
	}
	return "static"
}
