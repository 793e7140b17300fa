package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"presupuestos/internal/store"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Driver selects the SQL dialect.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

func (d Driver) sqlDriverName() string {
	if d == DriverPostgres {
		return "pgx"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders to $n for postgres.
func (d Driver) rebind(query string) string {
	if d != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ensure interface conformance
var _ store.UnitOfWork = (*Repository)(nil)

// Repository is the SQL-backed unit of work.
type Repository struct {
	db     *sql.DB
	driver Driver
}

// sqliteDSN enables foreign keys and a busy timeout on every connection.
func sqliteDSN(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// NewSQLiteRepository opens (creating if needed) the database file and
// applies the schema migrations.
func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := sqliteDSN(dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single local user: one connection serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DriverSQLite, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, driver: DriverSQLite}, nil
}

// NewPostgresRepository connects through the pgx stdlib driver and applies
// the schema migrations.
func NewPostgresRepository(ctx context.Context, dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := RunMigrations(DriverPostgres, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Repository{db: db, driver: DriverPostgres}, nil
}

// Options selects the dialect and its location. DSN is a file path for
// sqlite and a connection string for postgres.
type Options struct {
	Driver Driver
	DSN    string
}

// Open connects to the configured dialect and migrates the schema.
func Open(ctx context.Context, opts Options) (*Repository, error) {
	switch opts.Driver {
	case DriverSQLite:
		return NewSQLiteRepository(opts.DSN)
	case DriverPostgres:
		return NewPostgresRepository(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", opts.Driver)
	}
}

// MigrationDSN returns the DSN the migration tooling should use for the
// given driver and configured location.
func MigrationDSN(driver Driver, location string) string {
	if driver == DriverSQLite {
		return sqliteDSN(location)
	}
	return location
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Driver reports the dialect in use.
func (r *Repository) Driver() Driver { return r.driver }

// RunInTx implements store.UnitOfWork.
func (r *Repository) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&sqlTx{tx: tx, driver: r.driver}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}
