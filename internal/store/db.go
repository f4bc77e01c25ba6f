package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store provides SQLite persistence for the application registry.
//
// A single RWMutex serialises writers: every mutation takes the write lock,
// every read takes the read lock. There is no lock timeout.
type Store struct {
	db        *sql.DB
	mu        sync.RWMutex
	publisher Publisher
	logger    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher routes every committed ChangeRecord to p.
func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithLogger sets the logger used for migrations and diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a new Store with the specified database path.
// Use ":memory:" for in-memory databases (useful for testing).
// The schema is not touched; call CreateSchema before use.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool defaults
	db.SetMaxOpenConns(1) // SQLite only allows one writer at a time
	db.SetMaxIdleConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// The CLI and the watch daemon share the file.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open creates a Store and brings its schema up to date.
func Open(dbPath string, opts ...Option) (*Store, error) {
	s, err := New(dbPath, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.CreateSchema(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetPublisher replaces the publisher. It waits for any in-flight mutation.
func (s *Store) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// CreateSchema creates the registry table or migrates a legacy one.
func (s *Store) CreateSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	version, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	exists, err := s.tableExists(ctx, tableAppInfos)
	if err != nil {
		return err
	}

	switch {
	case !exists:
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	case version < 1:
		if err := s.migrateToV1(ctx); err != nil {
			return fmt.Errorf("failed to migrate schema to v1: %w", err)
		}
	default:
		// Current shape; re-run for a dropped index.
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	if version != currentSchemaVersion {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}
	return nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

func (s *Store) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return n > 0, nil
}

// publish hands a committed change to the publisher. Callers hold s.mu.
func (s *Store) publish(change *ChangeRecord) {
	if s.publisher == nil || change.Empty() {
		return
	}
	s.publisher.Publish(change)
}
