package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Collection is an id-ordered set of records. It encodes as a JSON object
// keyed by the decimal id, preserving ascending id order on the wire, which
// json.Marshal of a map would not (it sorts keys as strings).
type Collection []Entry

// NewCollection builds an ascending-id collection from a map.
func NewCollection(records map[int]Pokemon) Collection {
	out := make(Collection, 0, len(records))
	for id, p := range records {
		out = append(out, Entry{ID: id, Pokemon: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Map returns the collection as an id keyed map.
func (c Collection) Map() map[int]Pokemon {
	out := make(map[int]Pokemon, len(c))
	for _, e := range c {
		out[e.ID] = e.Pokemon
	}
	return out
}

// IDs returns the identifiers in collection order.
func (c Collection) IDs() []int {
	out := make([]int, len(c))
	for i, e := range c {
		out[i] = e.ID
	}
	return out
}

// MarshalJSON encodes the collection as an ordered object.
func (c Collection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(e.ID)))
		buf.WriteByte(':')
		body, err := marshalRecord(e.Pokemon)
		if err != nil {
			return nil, err
		}
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an id keyed object. Keys must be positive integers.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var raw map[string]Pokemon
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	records := make(map[int]Pokemon, len(raw))
	for key, p := range raw {
		id, err := strconv.Atoi(key)
		if err != nil || id < 1 {
			return fmt.Errorf("invalid record key %q", key)
		}
		records[id] = p
	}
	*c = NewCollection(records)
	return nil
}

// marshalRecord encodes a record without HTML escaping so names such as
// "Nidoran<F>" round trip literally.
func marshalRecord(p Pokemon) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
