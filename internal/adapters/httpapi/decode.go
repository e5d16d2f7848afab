package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"pokedex/pkg/domain"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

func bodyError(loc []string, msg, typ string) domain.ValidationError {
	return domain.ValidationError{Fields: []domain.FieldError{{Location: loc, Message: msg, Type: typ}}}
}

// decodePokemon reads a create or update payload. Every field is required;
// all field problems are reported together.
func decodePokemon(w http.ResponseWriter, r *http.Request) (domain.Pokemon, error) {
	var raw map[string]json.RawMessage
	var tooLarge *http.MaxBytesError
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &tooLarge):
			return domain.Pokemon{}, err
		case errors.Is(err, io.EOF):
			return domain.Pokemon{}, bodyError([]string{"body"}, "Field required", "missing")
		case errors.As(err, &typeErr):
			return domain.Pokemon{}, bodyError([]string{"body"}, "Input should be a valid dictionary or object to extract fields from", "model_attributes_type")
		default:
			return domain.Pokemon{}, bodyError([]string{"body"}, "JSON decode error", "json_invalid")
		}
	}
	// The body must hold exactly one JSON value.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if errors.As(err, &tooLarge) {
			return domain.Pokemon{}, err
		}
		return domain.Pokemon{}, bodyError([]string{"body"}, "JSON decode error", "json_invalid")
	}
	if raw == nil {
		return domain.Pokemon{}, bodyError([]string{"body"}, "Input should be a valid dictionary or object to extract fields from", "model_attributes_type")
	}

	var (
		p      domain.Pokemon
		fields []domain.FieldError
	)
	if fe, ok := decodeField(raw, "name", &p.Name, "string_type", "Input should be a valid string"); !ok {
		fields = append(fields, fe)
	}
	if fe, ok := decodeField(raw, "category", &p.Category, "string_type", "Input should be a valid string"); !ok {
		fields = append(fields, fe)
	}
	level, fe, ok := decodeLevel(raw)
	if !ok {
		fields = append(fields, fe)
	} else {
		p.Level = level
		var ve domain.ValidationError
		if errors.As(p.Validate(), &ve) {
			fields = append(fields, ve.Fields...)
		}
	}
	if len(fields) > 0 {
		return domain.Pokemon{}, domain.ValidationError{Fields: fields}
	}
	return p, nil
}

func decodeField(raw map[string]json.RawMessage, name string, dst any, typ, msg string) (domain.FieldError, bool) {
	value, ok := raw[name]
	if !ok {
		return domain.FieldError{Location: []string{"body", name}, Message: "Field required", Type: "missing"}, false
	}
	if string(value) == "null" || json.Unmarshal(value, dst) != nil {
		return domain.FieldError{Location: []string{"body", name}, Message: msg, Type: typ}, false
	}
	return domain.FieldError{}, true
}

// decodeLevel accepts a JSON integer, a number with no fractional part such
// as 5.0, or a string holding a decimal integer such as "5".
func decodeLevel(raw map[string]json.RawMessage) (int, domain.FieldError, bool) {
	loc := []string{"body", "level"}
	value, ok := raw["level"]
	if !ok {
		return 0, domain.FieldError{Location: loc, Message: "Field required", Type: "missing"}, false
	}
	invalid := domain.FieldError{Location: loc, Message: "Input should be a valid integer", Type: "int_type"}

	var v any
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, invalid, false
	}
	switch v := v.(type) {
	case json.Number:
		if n, err := strconv.Atoi(v.String()); err == nil {
			return n, domain.FieldError{}, true
		}
		f, err := v.Float64()
		if err != nil || math.IsInf(f, 0) {
			return 0, invalid, false
		}
		if f != math.Trunc(f) {
			return 0, domain.FieldError{Location: loc, Message: "Input should be a valid integer, got a number with a fractional part", Type: "int_from_float"}, false
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, invalid, false
		}
		return int(f), domain.FieldError{}, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, domain.FieldError{Location: loc, Message: "Input should be a valid integer, unable to parse string as an integer", Type: "int_parsing"}, false
		}
		return n, domain.FieldError{}, true
	default:
		return 0, invalid, false
	}
}
