package core

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"pokedex/internal/blob"
	"pokedex/internal/infra/persistence/document"
	"pokedex/internal/infra/persistence/memory"
	"pokedex/internal/infra/persistence/postgres"
	"pokedex/internal/infra/persistence/sqlite"
	"pokedex/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageFile     StorageDriver = "file"     // JSON document on the local filesystem
	StorageS3       StorageDriver = "s3"       // JSON document in an S3 / MinIO bucket
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// Store is the contract every storage driver satisfies: the domain
// persistence interface plus snapshot hydration.
type Store interface {
	domain.PersistentStore
	Load(ctx context.Context) (memory.Snapshot, error)
	ImportState(memory.Snapshot)
	ExportState() memory.Snapshot
	Policy() domain.IDPolicy
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*document.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// StorageOptions selects and configures the storage driver.
type StorageOptions struct {
	Driver      StorageDriver
	IDPolicy    domain.IDPolicy
	LoadOnStart bool
	// Dir is the root directory of the file driver.
	Dir string
	// Key names the JSON document for the file and s3 drivers.
	Key         string
	SQLitePath  string
	PostgresDSN string
	S3          blob.S3Config
}

// OpenPersistentStore builds the configured driver (default file) and
// hydrates it. Without LoadOnStart the store starts from the seed records and
// the persisted state is left untouched until the first mutation.
func OpenPersistentStore(ctx context.Context, opts StorageOptions, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := opts.Driver
	if driver == "" {
		driver = StorageFile
	}
	var (
		store Store
		err   error
	)
	switch driver {
	case StorageMemory:
		store = memory.NewStore(opts.IDPolicy)
	case StorageFile:
		var blobs blob.Store
		if blobs, err = blob.Open(ctx, blob.Config{Driver: blob.DriverFilesystem, Root: opts.Dir}); err == nil {
			store = document.NewStore(blobs, opts.Key, opts.IDPolicy)
		}
	case StorageS3:
		var blobs blob.Store
		if blobs, err = blob.Open(ctx, blob.Config{Driver: blob.DriverS3, S3: opts.S3}); err == nil {
			store = document.NewStore(blobs, opts.Key, opts.IDPolicy)
		}
	case StorageSQLite:
		store, err = openSQLite(opts)
	case StoragePostgres:
		store, err = openPostgres(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", driver, err)
	}
	if err := Hydrate(ctx, store, opts.LoadOnStart); err != nil {
		_ = CloseStore(store)
		return nil, err
	}
	logger.Info("storage ready",
		zap.String("driver", string(driver)),
		zap.String("id_policy", string(store.Policy())),
		zap.Bool("load_on_start", opts.LoadOnStart),
		zap.Int("records", len(store.ExportState().Records)),
	)
	return store, nil
}

func openSQLite(opts StorageOptions) (Store, error) {
	return sqlite.NewStore(opts.SQLitePath, opts.IDPolicy)
}

func openPostgres(ctx context.Context, opts StorageOptions) (Store, error) {
	return postgres.NewStore(ctx, opts.PostgresDSN, opts.IDPolicy)
}

// Hydrate fills store with its initial contents. With load set the persisted
// snapshot is used, falling back to the seed records when it holds none; the
// persisted sequence is kept either way.
func Hydrate(ctx context.Context, store Store, load bool) error {
	if !load {
		store.ImportState(memory.Snapshot{Records: domain.Seed()})
		return nil
	}
	snapshot, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load persisted state: %w", err)
	}
	if len(snapshot.Records) == 0 {
		snapshot.Records = domain.Seed()
	}
	store.ImportState(snapshot)
	return nil
}

// CloseStore releases resources held by drivers that own a connection.
func CloseStore(store Store) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
