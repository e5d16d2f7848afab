package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Filter length bounds, counted in characters.
const (
	NameFilterMin     = 2
	NameFilterMax     = 50
	CategoryFilterMin = 3
	CategoryFilterMax = 50
)

// Filter narrows a listing. A nil field means the filter was not supplied;
// a non-nil empty string is a supplied filter and fails validation.
type Filter struct {
	Name     *string
	Category *string
}

// Validate enforces the filter length bounds.
func (f Filter) Validate() error {
	var fields []FieldError
	if f.Name != nil {
		if fe, ok := checkLength("name", *f.Name, NameFilterMin, NameFilterMax); !ok {
			fields = append(fields, fe)
		}
	}
	if f.Category != nil {
		if fe, ok := checkLength("category", *f.Category, CategoryFilterMin, CategoryFilterMax); !ok {
			fields = append(fields, fe)
		}
	}
	if len(fields) > 0 {
		return ValidationError{Fields: fields}
	}
	return nil
}

// Matches reports whether p satisfies every supplied filter using
// case-insensitive substring matching.
func (f Filter) Matches(p Pokemon) bool {
	if f.Name != nil && !containsFold(p.Name, *f.Name) {
		return false
	}
	if f.Category != nil && !containsFold(p.Category, *f.Category) {
		return false
	}
	return true
}

// Empty reports whether no filter was supplied.
func (f Filter) Empty() bool {
	return f.Name == nil && f.Category == nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func checkLength(field, value string, lo, hi int) (FieldError, bool) {
	n := utf8.RuneCountInString(value)
	switch {
	case n < lo:
		return FieldError{
			Location: []string{"query", field},
			Message:  fmt.Sprintf("String should have at least %d characters", lo),
			Type:     "string_too_short",
		}, false
	case n > hi:
		return FieldError{
			Location: []string{"query", field},
			Message:  fmt.Sprintf("String should have at most %d characters", hi),
			Type:     "string_too_long",
		}, false
	}
	return FieldError{}, true
}
