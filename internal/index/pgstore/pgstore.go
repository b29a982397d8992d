// Package pgstore keeps the index document in PostgreSQL, one row per
// served root.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/fruitsalade/folderserve/internal/metrics"
	"github.com/fruitsalade/folderserve/internal/storage"
)

const schema = `CREATE TABLE IF NOT EXISTS folderserve_index (
	root       TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store is a PostgreSQL-backed index document store.
type Store struct {
	db   *sql.DB
	root string
}

// New connects to databaseURL and ensures the table exists. root keys the
// row, so several servers may share one database.
func New(ctx context.Context, databaseURL, root string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, root: root}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create index table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Load returns the document for this root.
func (s *Store) Load(ctx context.Context) (doc []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreOperation("postgres", "get", time.Since(start), err == nil || errors.Is(err, storage.ErrNotFound))
	}()

	var text string
	err = s.db.QueryRowContext(ctx,
		`SELECT document FROM folderserve_index WHERE root = $1`, s.root,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index for %s: %w", s.root, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return []byte(text), nil
}

// Save upserts the document in a single statement.
func (s *Store) Save(ctx context.Context, doc []byte) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation("postgres", "put", time.Since(start), err == nil) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO folderserve_index (root, document, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (root) DO UPDATE
		SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		s.root, string(doc))
	if err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

// Delete removes the document for this root.
func (s *Store) Delete(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation("postgres", "delete", time.Since(start), err == nil) }()

	if _, err = s.db.ExecContext(ctx, `DELETE FROM folderserve_index WHERE root = $1`, s.root); err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	return nil
}

// Name returns "postgres:<root>".
func (s *Store) Name() string {
	return "postgres:" + s.root
}
