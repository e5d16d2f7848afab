// Package domain defines the pokemon record, its validation rules, and the
// persistence contracts implemented by the storage backends.
package domain

// Pokemon is the stored shape of a record. The identifier is not part of the
// record; it is the key under which the store holds it.
type Pokemon struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Level    int    `json:"level"`
}

// MinLevel is the lowest accepted level for a record.
const MinLevel = 1

// Validate checks a create or update payload. Name and category are accepted
// as supplied, including empty strings.
func (p Pokemon) Validate() error {
	if p.Level < MinLevel {
		return ValidationError{Fields: []FieldError{{
			Location: []string{"body", "level"},
			Message:  "Input should be greater than or equal to 1",
			Type:     "greater_than_equal",
		}}}
	}
	return nil
}

// Entry pairs a record with its identifier. It encodes flat as
// {"id", "name", "category", "level"}.
type Entry struct {
	ID int `json:"id"`
	Pokemon
}

// Action describes the type of change applied to a record.
type Action string

const (
	// ActionCreate indicates a newly inserted record.
	ActionCreate Action = "create"
	// ActionUpdate indicates a wholesale replacement.
	ActionUpdate Action = "update"
	// ActionDelete indicates a removal.
	ActionDelete Action = "delete"
)

// Change captures a single mutation applied inside a transaction.
type Change struct {
	Action Action   `json:"action"`
	ID     int      `json:"id"`
	Before *Pokemon `json:"before,omitempty"`
	After  *Pokemon `json:"after,omitempty"`
}

// Result summarises a committed transaction.
type Result struct {
	Changes []Change `json:"changes"`
}
