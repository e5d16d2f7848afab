// Package sqlite persists the record store into a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pokedex/internal/infra/persistence/memory"
	"pokedex/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is the database file used when none is configured.
const DefaultPath = "pokedex.db"

const sequenceKey = "sequence"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pokemon (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		level INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	)`,
}

// Store snapshots the in-memory state into SQLite after every committed
// transaction.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating if needed) the database at path and ensures the
// schema. The returned store is empty; callers hydrate it with Load.
func NewStore(path string, policy domain.IDPolicy) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{Store: memory.NewStore(policy), db: db, path: path}, nil
}

// Load reads the persisted records and sequence.
func (s *Store) Load(ctx context.Context) (memory.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, category, level FROM pokemon ORDER BY id`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select pokemon: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var snapshot memory.Snapshot
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Category, &e.Level); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan: %w", err)
		}
		snapshot.Records = append(snapshot.Records, e)
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate pokemon: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, sequenceKey).Scan(&snapshot.Sequence)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return memory.Snapshot{}, fmt.Errorf("select sequence: %w", err)
	}
	return snapshot, nil
}

// Save replaces the persisted contents with snapshot in one transaction.
func (s *Store) Save(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM pokemon`); err != nil {
		return fmt.Errorf("clear pokemon: %w", err)
	}
	for _, e := range snapshot.Records {
		if _, err := tx.ExecContext(ctx, `INSERT INTO pokemon(id,name,category,level) VALUES(?,?,?,?)`, e.ID, e.Name, e.Category, e.Level); err != nil {
			return fmt.Errorf("insert pokemon %d: %w", e.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO store_meta(key,value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, sequenceKey, snapshot.Sequence); err != nil {
		return fmt.Errorf("upsert sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RunInTransaction applies fn and snapshots the committed state to SQLite.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	return s.Store.RunInTransactionThen(ctx, fn, s.Save)
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
