package domain

import "context"

// IDPolicy selects how a store assigns identifiers to new records.
type IDPolicy string

const (
	// IDPolicyMax assigns max(existing id)+1, or 1 when the store is empty.
	// Deleting the highest record frees its id for reuse.
	IDPolicyMax IDPolicy = "max"
	// IDPolicySequence assigns from a monotonic high-water mark that deletion
	// never lowers, so ids are not reused.
	IDPolicySequence IDPolicy = "sequence"
)

// Valid reports whether the policy is known.
func (p IDPolicy) Valid() bool {
	return p == IDPolicyMax || p == IDPolicySequence
}

// Transaction exposes the mutations a persistence implementation must
// support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Create(Pokemon) (Entry, error)
	Replace(id int, p Pokemon) (Entry, error)
	Delete(id int) error
}

// TransactionView provides read-only access to store contents.
type TransactionView interface {
	List(Filter) Collection
	Find(id int) (Pokemon, bool)
	Len() int
}

// PersistentStore is the abstraction the service depends on. Durable
// backends persist the full contents after each committed transaction.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
