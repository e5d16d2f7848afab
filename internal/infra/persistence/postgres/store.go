// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics and snapshots committed state into two tables.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"pokedex/internal/infra/persistence/memory"
	"pokedex/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/pokedex?sslmode=disable"

	sequenceKey = "sequence"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pokemon (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		level INTEGER NOT NULL CHECK (level >= 1)
	)`,
	`CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
}

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using dsn (falls back to DefaultDSN)
// and ensures the schema exists. The returned store is empty; callers hydrate
// it with Load.
func NewStore(ctx context.Context, dsn string, policy domain.IDPolicy) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: memory.NewStore(policy), db: db}, nil
}

// RunInTransaction applies fn and snapshots the committed state to Postgres.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	return s.Store.RunInTransactionThen(ctx, fn, s.Save)
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Load reads the persisted records and sequence.
func (s *Store) Load(ctx context.Context) (memory.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, category, level FROM pokemon ORDER BY id`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select pokemon: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make(map[int]domain.Pokemon)
	for rows.Next() {
		var (
			id int
			p  domain.Pokemon
		)
		if err := rows.Scan(&id, &p.Name, &p.Category, &p.Level); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan pokemon: %w", err)
		}
		records[id] = p
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate pokemon: %w", err)
	}
	snapshot := memory.Snapshot{Records: domain.NewCollection(records)}
	err = s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = $1`, sequenceKey).Scan(&snapshot.Sequence)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return memory.Snapshot{}, fmt.Errorf("select sequence: %w", err)
	}
	return snapshot, nil
}

// Save replaces the persisted contents with snapshot in one transaction.
func (s *Store) Save(ctx context.Context, snapshot memory.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `TRUNCATE TABLE pokemon`); err != nil {
		return fmt.Errorf("truncate pokemon: %w", err)
	}
	for _, e := range snapshot.Records {
		if _, err := tx.ExecContext(ctx, `INSERT INTO pokemon (id, name, category, level) VALUES ($1,$2,$3,$4)`, e.ID, e.Name, e.Category, e.Level); err != nil {
			return fmt.Errorf("insert pokemon %d: %w", e.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO store_meta (key, value) VALUES ($1,$2) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value`, sequenceKey, snapshot.Sequence); err != nil {
		return fmt.Errorf("upsert sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
