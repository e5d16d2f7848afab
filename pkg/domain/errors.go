package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = errors.New("pokemon not found")

// NotFound wraps ErrNotFound with the offending id.
func NotFound(id int) error {
	return fmt.Errorf("%w: id %d", ErrNotFound, id)
}

// FieldError describes one rejected input value. Location follows the
// request layout, for example ["query", "name"] or ["path", "id"].
type FieldError struct {
	Location []string `json:"loc"`
	Message  string   `json:"msg"`
	Type     string   `json:"type"`
}

// ValidationError reports malformed or out-of-range client input.
type ValidationError struct {
	Fields []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, strings.Join(f.Location, ".")+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// ValidateID rejects identifiers below 1.
func ValidateID(id int) error {
	if id < 1 {
		return ValidationError{Fields: []FieldError{{
			Location: []string{"path", "id"},
			Message:  "Input should be greater than or equal to 1",
			Type:     "greater_than_equal",
		}}}
	}
	return nil
}
