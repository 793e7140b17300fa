// Package cli provides common CLI initialization utilities shared by
// cmd/presupuestos and cmd/presupuestos-worker.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"presupuestos/internal/amqp"
	"presupuestos/internal/backend"
	"presupuestos/internal/cache"
	"presupuestos/internal/config"
	"presupuestos/internal/core"
	applog "presupuestos/internal/log"
	"presupuestos/internal/services"
	"presupuestos/internal/sheets"

	"github.com/joho/godotenv"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// sets it as the default logger. A nil out logs to stdout.
func SetupLogger(cfg *config.Config, component string, out io.Writer) *applog.Logger {
	logCfg := applog.DefaultConfig()
	logCfg.Component = component
	if out != nil {
		logCfg.Output = out
	}
	if cfg != nil {
		logCfg.Level = applog.ParseLevel(cfg.LogLevel)
		logCfg.Format = cfg.LogFormat
	}
	logger := applog.New(logCfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App bundles the services a command works with.
type App struct {
	Config   *config.Config
	Catalog  *services.ResourceCatalog
	Analyses *services.AnalysisService
	Budgets  *services.BudgetService

	factory    backend.Factory
	backendCfg backend.Config
	amqp       *amqp.Client
	lookup     *cache.LRUCache[core.Resource]
	cleanup    backend.CleanupFunc
}

// OpenBackend opens the configured store and, when AMQP_URL is set, the
// commit publisher. A broker that cannot be reached only disables
// notifications.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	factory := backend.NewFactory(logger)
	res, err := factory.CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, factory: factory, backendCfg: bcfg, cleanup: res.Cleanup}

	// A nil *amqp.Client must not reach the services as a non-nil Notifier.
	var notifier services.Notifier
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without notifications", "error", err)
		} else {
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
			app.amqp = client
			notifier = client
		}
	}

	// A nil *LRUCache must not reach the catalog as a non-nil Cache.
	var lookup cache.Cache[core.Resource]
	if cfg.CatalogCacheSize > 0 {
		app.lookup = cache.NewLRUCache[core.Resource](cfg.CatalogCacheSize, cfg.CatalogCacheTTL)
		lookup = app.lookup
	}

	app.Catalog = services.NewResourceCatalog(res.UnitOfWork, lookup)
	app.Analyses = services.NewAnalysisService(res.UnitOfWork, notifier)
	app.Budgets = services.NewBudgetService(res.UnitOfWork, notifier)
	return app, nil
}

// AMQP returns the broker client, or nil when notifications are off.
func (a *App) AMQP() *amqp.Client { return a.amqp }

// BudgetWriter returns the configured spreadsheet mirror.
func (a *App) BudgetWriter(ctx context.Context) (sheets.BudgetWriter, error) {
	return a.factory.CreateBudgetWriter(ctx, a.backendCfg)
}

// Close releases the broker connection and the store.
func (a *App) Close() error {
	if a.lookup != nil {
		st := a.lookup.Stats()
		slog.Debug("Catalog cache", "hits", st.Hits, "misses", st.Misses, "entries", a.lookup.Size())
	}
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			slog.Warn("Failed to close AMQP client", "error", err)
		}
	}
	if a.cleanup != nil {
		if err := a.cleanup(); err != nil {
			return fmt.Errorf("close backend: %w", err)
		}
	}
	return nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}
