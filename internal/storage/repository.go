package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Repository groups the ledger stores over one connection pool, or over one
// open transaction when handed out by WithTx.
type Repository struct {
	conn

	Users        *UserStore
	Accounts     *AccountStore
	Categories   *CategoryStore
	Rules        *RuleStore
	Transactions *TransactionStore
	Snapshots    *SnapshotStore
}

func newRepository(c conn) *Repository {
	return &Repository{
		conn:         c,
		Users:        &UserStore{conn: c},
		Accounts:     &AccountStore{conn: c},
		Categories:   &CategoryStore{conn: c},
		Rules:        &RuleStore{conn: c},
		Transactions: &TransactionStore{conn: c},
		Snapshots:    &SnapshotStore{conn: c},
	}
}

// SQLiteDSN enables foreign keys, a busy timeout and BEGIN IMMEDIATE so
// concurrent writers serialize on the first statement of a transaction.
func SQLiteDSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := SQLiteDSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectSQLite, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite repository ready", "path", dbPath)
	return newRepository(conn{db: db, q: db, dialect: DialectSQLite}), nil
}

func NewPostgresRepository(databaseURL string) (*Repository, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectPostgres, databaseURL); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("Postgres repository ready")
	return newRepository(conn{db: db, q: db, dialect: DialectPostgres}), nil
}

// WithTx runs fn with a Repository bound to a single database transaction.
// Calls made through the inner Repository commit or roll back together.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	return r.inTx(ctx, func(c conn) error {
		return fn(newRepository(c))
	})
}

func (r *Repository) Dialect() Dialect {
	return r.dialect
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
