package backend

import (
	"context"
	"fmt"
	"log/slog"

	"presupuestos/internal/sheets"
	gsheet "presupuestos/internal/sheets/google"
	"presupuestos/internal/sheets/memory"
	"presupuestos/internal/storage"
	memstore "presupuestos/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLBackend(ctx, storage.Options{Driver: storage.DriverSQLite, DSN: config.SQLiteDBPath})
	case PostgresBackend:
		return f.createSQLBackend(ctx, storage.Options{Driver: storage.DriverPostgres, DSN: config.PostgresDSN})
	case MemoryBackend:
		f.logger.Warn("Using in-memory backend, data is lost on exit")
		return &BackendResult{UnitOfWork: memstore.New()}, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLBackend(ctx context.Context, opts storage.Options) (*BackendResult, error) {
	repo, err := storage.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", opts.Driver, err)
	}

	f.logger.Info("Initialized SQL backend", "driver", opts.Driver)

	return &BackendResult{
		UnitOfWork: repo,
		Cleanup:    repo.Close,
	}, nil
}

// CreateBudgetWriter implements Factory.CreateBudgetWriter. Without a
// spreadsheet ID writes are only recorded in memory.
func (f *DefaultFactory) CreateBudgetWriter(ctx context.Context, config Config) (sheets.BudgetWriter, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.Warn("GOOGLE_SPREADSHEET_ID not set, budget mirror runs dry")
		return memory.NewWriter(), nil
	}
	cli, err := gsheet.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets budget mirror")
	return cli, nil
}
