// Package document persists the whole record store as a single JSON document
// held in a blob store (local filesystem, S3 or memory).
package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"pokedex/internal/blob"
	"pokedex/internal/infra/persistence/memory"
	"pokedex/pkg/domain"
)

// DefaultKey is the blob key of the persisted document.
const DefaultKey = "pokemons.json"

const contentType = "application/json"

var _ domain.PersistentStore = (*Store)(nil)

// Store wraps the memory store and writes the full document after every
// committed transaction.
type Store struct {
	*memory.Store
	blobs blob.Store
	key   string
	mu    sync.Mutex
}

// NewStore constructs an empty document-backed store. Callers hydrate it with
// Load and ImportState.
func NewStore(blobs blob.Store, key string, policy domain.IDPolicy) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{Store: memory.NewStore(policy), blobs: blobs, key: key}
}

// Key returns the blob key the document is stored under.
func (s *Store) Key() string { return s.key }

// RunInTransaction commits fn and then writes the committed state. The write
// happens under the store's write lock so documents land in commit order.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	return s.Store.RunInTransactionThen(ctx, fn, s.Save)
}

// Save overwrites the document with snapshot.
func (s *Store) Save(ctx context.Context, snapshot memory.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := Encode(snapshot, s.Policy())
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := s.blobs.Put(ctx, s.key, bytes.NewReader(data), blob.PutOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("write document %s: %w", s.key, err)
	}
	return nil
}

// Load reads the persisted document. An absent document yields an empty snapshot.
func (s *Store) Load(ctx context.Context) (memory.Snapshot, error) {
	_, rc, err := s.blobs.Get(ctx, s.key)
	if errors.Is(err, blob.ErrNotFound) {
		return memory.Snapshot{}, nil
	}
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("read document %s: %w", s.key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("read document %s: %w", s.key, err)
	}
	snapshot, err := Decode(data)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("decode document %s: %w", s.key, err)
	}
	return snapshot, nil
}

// Encode renders snapshot as the persisted document: an object keyed by the
// decimal id, four-space indented, with no HTML or non-ASCII escaping. Under
// the sequence policy the object is nested in a wrapper carrying the
// high-water mark.
func Encode(snapshot memory.Snapshot, policy domain.IDPolicy) ([]byte, error) {
	var v any = snapshot.Records
	if policy == domain.IDPolicySequence {
		v = snapshot
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses either document layout written by Encode. Blank input
// decodes to an empty snapshot.
func Decode(data []byte) (memory.Snapshot, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return memory.Snapshot{}, nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return memory.Snapshot{}, err
	}
	if _, wrapped := probe["records"]; wrapped {
		var snapshot memory.Snapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return memory.Snapshot{}, err
		}
		return snapshot, nil
	}
	var records domain.Collection
	if err := json.Unmarshal(data, &records); err != nil {
		return memory.Snapshot{}, err
	}
	return memory.Snapshot{Records: records}, nil
}
