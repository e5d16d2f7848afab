package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"pokedex/internal/infra/persistence/memory"
	"pokedex/pkg/domain"
)

func openStore(t *testing.T, path string, policy domain.IDPolicy) *Store {
	t.Helper()
	store, err := NewStore(path, policy)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pokedex.db")
	store := openStore(t, path, domain.IDPolicyMax)
	store.ImportState(memory.Snapshot{Records: domain.Seed()})
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.Create(domain.Pokemon{Name: "Eevee", Category: "Normal", Level: 5}); err != nil {
			return err
		}
		return tx.Delete(2)
	}); err != nil {
		t.Fatalf("tx: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("unexpected path %s", store.Path())
	}

	reloaded := openStore(t, path, domain.IDPolicyMax)
	snapshot, err := reloaded.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ids := snapshot.Records.IDs()
	want := []int{1, 3, 4, 5, 6}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
	if snapshot.Records[4].Name != "Eevee" || snapshot.Sequence != 6 {
		t.Fatalf("unexpected reloaded state %+v", snapshot)
	}
}

func TestSQLiteStoreLoadEmptyDatabase(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "nested", "pokedex.db"), domain.IDPolicyMax)
	snapshot, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snapshot.Records) != 0 || snapshot.Sequence != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snapshot)
	}
}

func TestSQLiteStoreCreatesSchema(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "pokedex.db"), domain.IDPolicyMax)
	for _, table := range []string{"pokemon", "store_meta"} {
		var name string
		if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name); err != nil {
			t.Fatalf("lookup %s table: %v", table, err)
		}
	}
}

func TestSQLiteStoreSkipsWriteOnFailedTransaction(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "pokedex.db"), domain.IDPolicyMax)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.Replace(7, domain.Pokemon{Level: 3})
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var count int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM store_meta").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted meta, got %d rows", count)
	}
}

func TestSQLiteStorePersistFailureSurfaces(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "pokedex.db"), domain.IDPolicyMax)
	store.ImportState(memory.Snapshot{Records: domain.Seed()})
	if _, err := store.DB().Exec("DROP TABLE pokemon"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.Delete(1)
	})
	if err == nil {
		t.Fatalf("expected persistence error")
	}
	if len(store.ExportState().Records) != 4 {
		t.Fatalf("in-memory commit must stand")
	}
}
