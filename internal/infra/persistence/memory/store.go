// Package memory provides the in-memory transactional store that every
// durable backend wraps. It is also used directly for tests and ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"pokedex/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Pokemon aliases domain.Pokemon.
	Pokemon = domain.Pokemon
	// Entry aliases domain.Entry.
	Entry = domain.Entry
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing a commit.
	Result = domain.Result
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	records map[int]Pokemon
	// sequence is the highest id ever assigned; only advanced, never lowered.
	sequence int
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Records  domain.Collection `json:"records"`
	Sequence int               `json:"sequence"`
}

func newMemoryState() memoryState {
	return memoryState{records: make(map[int]Pokemon)}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		records:  make(map[int]Pokemon, len(s.records)),
		sequence: s.sequence,
	}
	for k, v := range s.records {
		cloned.records[k] = v
	}
	return cloned
}

func (s memoryState) maxID() int {
	highest := 0
	for id := range s.records {
		if id > highest {
			highest = id
		}
	}
	return highest
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	return Snapshot{
		Records:  domain.NewCollection(state.records),
		Sequence: state.sequence,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, e := range s.Records {
		state.records[e.ID] = e.Pokemon
	}
	state.sequence = s.Sequence
	if highest := state.maxID(); highest > state.sequence {
		state.sequence = highest
	}
	return state
}

// Store provides an in-memory transactional store for pokemon records.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	policy domain.IDPolicy
}

// NewStore constructs an empty in-memory store. An unknown or empty policy
// falls back to domain.IDPolicyMax.
func NewStore(policy domain.IDPolicy) *Store {
	if !policy.Valid() {
		policy = domain.IDPolicyMax
	}
	return &Store{
		state:  newMemoryState(),
		policy: policy,
	}
}

// Policy returns the configured id assignment policy.
func (s *Store) Policy() domain.IDPolicy { return s.policy }

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot without
// persisting it.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// Load returns an empty snapshot; memory has no durable state to read.
func (s *Store) Load(_ context.Context) (Snapshot, error) {
	return Snapshot{}, nil
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn returns nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	return s.RunInTransactionThen(ctx, fn, nil)
}

// RunInTransactionThen behaves like RunInTransaction and, after a successful
// commit, invokes after with the committed snapshot while still holding the
// write lock. Durable stores use it so that writes reach the backend in commit
// order. An error from after is returned but does not undo the commit.
func (s *Store) RunInTransactionThen(ctx context.Context, fn func(tx Transaction) error, after func(context.Context, Snapshot) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		store: s,
		state: s.state.clone(),
	}
	if err := fn(tx); err != nil {
		return Result{}, err
	}

	result := Result{Changes: tx.changes}
	s.state = tx.state
	if after != nil && len(tx.changes) > 0 {
		if err := after(ctx, snapshotFromMemoryState(s.state)); err != nil {
			return result, err
		}
	}
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(transactionView{state: &snapshot})
}

// transactionView exposes a read-only view over a state copy.
type transactionView struct {
	state *memoryState
}

// List returns matching records in ascending id order.
func (v transactionView) List(filter domain.Filter) domain.Collection {
	all := domain.NewCollection(v.state.records)
	if filter.Empty() {
		return all
	}
	out := make(domain.Collection, 0, len(all))
	for _, e := range all {
		if filter.Matches(e.Pokemon) {
			out = append(out, e)
		}
	}
	return out
}

// Find retrieves a record by id.
func (v transactionView) Find(id int) (Pokemon, bool) {
	p, ok := v.state.records[id]
	return p, ok
}

// Len returns the number of stored records.
func (v transactionView) Len() int { return len(v.state.records) }

// transaction represents a mutation set applied to a cloned state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view of the in-flight state.
func (tx *transaction) Snapshot() TransactionView {
	return transactionView{state: &tx.state}
}

func (tx *transaction) nextID() int {
	if tx.store.policy == domain.IDPolicySequence {
		return tx.state.sequence + 1
	}
	return tx.state.maxID() + 1
}

// Create validates and inserts a new record under the next id.
func (tx *transaction) Create(p Pokemon) (Entry, error) {
	if err := p.Validate(); err != nil {
		return Entry{}, err
	}
	id := tx.nextID()
	if _, exists := tx.state.records[id]; exists {
		return Entry{}, fmt.Errorf("pokemon %d already exists", id)
	}
	tx.state.records[id] = p
	if id > tx.state.sequence {
		tx.state.sequence = id
	}
	after := p
	tx.recordChange(Change{Action: domain.ActionCreate, ID: id, After: &after})
	return Entry{ID: id, Pokemon: p}, nil
}

// Replace overwrites every field of an existing record.
func (tx *transaction) Replace(id int, p Pokemon) (Entry, error) {
	if err := domain.ValidateID(id); err != nil {
		return Entry{}, err
	}
	if err := p.Validate(); err != nil {
		return Entry{}, err
	}
	current, ok := tx.state.records[id]
	if !ok {
		return Entry{}, domain.NotFound(id)
	}
	tx.state.records[id] = p
	before, after := current, p
	tx.recordChange(Change{Action: domain.ActionUpdate, ID: id, Before: &before, After: &after})
	return Entry{ID: id, Pokemon: p}, nil
}

// Delete removes a record.
func (tx *transaction) Delete(id int) error {
	if err := domain.ValidateID(id); err != nil {
		return err
	}
	current, ok := tx.state.records[id]
	if !ok {
		return domain.NotFound(id)
	}
	delete(tx.state.records, id)
	before := current
	tx.recordChange(Change{Action: domain.ActionDelete, ID: id, Before: &before})
	return nil
}
