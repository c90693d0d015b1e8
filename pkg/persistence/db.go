// Package persistence provides SQLite-based storage for users, generation
// sessions, playbooks, and the credit ledger.
package persistence

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"messagecraft/pkg/logx"
)

// Store wraps the database connection and provides all storage operations.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if necessary) the SQLite database at dbPath,
// applies schema migrations, and returns a ready Store.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("persistence")
	logger.Info("📦 Database initialized: %s", dbPath)

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection. Should be called during shutdown.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// DB exposes the underlying connection for packages that run their own
// queries against the shared database (e.g. progress tracking).
func (s *Store) DB() *sql.DB {
	return s.db
}
