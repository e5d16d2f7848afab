package testutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
)

func TestStubDBStoresAndQueriesRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	insert := "INSERT INTO pokemon (id, name) VALUES ($1,$2)"
	for _, row := range [][]driver.NamedValue{
		{{Value: int64(1)}, {Value: "Pikachu"}},
		{{Value: int64(2)}, {Value: "Bulbasaur"}},
	} {
		if _, err := conn.ExecContext(ctx, insert, row); err != nil {
			t.Fatalf("ExecContext insert: %v", err)
		}
	}
	if len(conn.Tables["pokemon"]) != 2 {
		t.Fatalf("expected two pokemon rows, got %v", conn.Tables["pokemon"])
	}

	rows, err := conn.QueryContext(ctx, "SELECT name, id FROM pokemon ORDER BY id", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = rows.Close() }()
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "Pikachu" || dest[1] != int64(1) {
		t.Fatalf("unexpected row values: %v", dest)
	}
}

func TestStubDBWhereFiltersOnArgument(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.Tables["store_meta"] = []Row{
		{"key": "other", "value": int64(99)},
		{"key": "sequence", "value": int64(4)},
	}
	rows, err := conn.QueryContext(ctx, "SELECT value FROM store_meta WHERE key = $1", []driver.NamedValue{{Value: "sequence"}})
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	dest := make([]driver.Value, 1)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != int64(4) {
		t.Fatalf("expected the sequence row, got %v", dest)
	}
	if err := rows.Next(dest); !errors.Is(err, io.EOF) {
		t.Fatalf("expected a single matching row, got %v", err)
	}

	rows, err = conn.QueryContext(ctx, "SELECT value FROM store_meta WHERE key = $1", []driver.NamedValue{{Value: "absent"}})
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	if err := rows.Next(dest); !errors.Is(err, io.EOF) {
		t.Fatalf("expected no rows for an unknown key, got %v", err)
	}
}

func TestStubDBUpsertAndTruncate(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	upsert := "INSERT INTO store_meta (value, key) VALUES ($1,$2) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value"
	for _, v := range []int64{3, 7} {
		if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: v}, {Value: "sequence"}}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: int64(1)}, {Value: "other"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	meta := conn.Tables["store_meta"]
	if len(meta) != 2 || meta[0]["key"] != "sequence" || meta[0]["value"] != int64(7) {
		t.Fatalf("expected upsert keyed on the conflict column, got %v", meta)
	}
	conn.Tables["pokemon"] = []Row{{"id": int64(1)}}
	if _, err := conn.ExecContext(ctx, "TRUNCATE TABLE pokemon", nil); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if len(conn.Tables["pokemon"]) != 0 || len(conn.Tables["store_meta"]) != 2 {
		t.Fatalf("truncate must only clear the named table: %v", conn.Tables)
	}
}

func TestStubDBRejectsUnknownStatements(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	if _, err := conn.ExecContext(ctx, "DELETE FROM pokemon WHERE id = $1", []driver.NamedValue{{Value: int64(1)}}); err == nil {
		t.Fatalf("expected unsupported statement error")
	}
	if _, err := conn.QueryContext(ctx, "SELECT id FROM pokemon WHERE name LIKE $1", []driver.NamedValue{{Value: "P%"}}); err == nil {
		t.Fatalf("expected unsupported query error")
	}
}
