// Package facet models the caller-selected facet values that narrow retrieval.
package facet

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a single selectable facet value.
type Value struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// UnmarshalJSON reads the id leniently: only name drives filtering, so a
// string or missing id decodes to its number or zero instead of failing.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name string          `json:"name"`
		ID   json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.Name = raw.Name
	v.ID = lenientID(raw.ID)
	return nil
}

func lenientID(raw json.RawMessage) int {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}

// Selection maps a facet category ("Interest", "Region", ...) to the values
// chosen for it, in selection order. A selection is immutable for the
// lifetime of a request.
type Selection map[string][]Value

// Category is a named facet with its allowed values, as served to clients.
type Category struct {
	Name   string
	Values []string
}

// Vocabulary is the ordered set of known facet categories.
type Vocabulary []Category

// Names returns the category names in vocabulary order.
func (v Vocabulary) Names() []string {
	names := make([]string, len(v))
	for i, c := range v {
		names[i] = c.Name
	}
	return names
}

// Indexed returns the vocabulary keyed by category, each value numbered
// from zero within its category.
func (v Vocabulary) Indexed() map[string][]Value {
	out := make(map[string][]Value, len(v))
	for _, c := range v {
		values := make([]Value, len(c.Values))
		for i, name := range c.Values {
			values[i] = Value{Name: name, ID: i}
		}
		out[c.Name] = values
	}
	return out
}

// ParseSelection decodes a raw JSON filter. An absent or null filter is an
// empty selection. Anything else that does not decode is reported as an
// error so the caller can degrade to "no filter".
func ParseSelection(raw json.RawMessage) (Selection, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Selection{}, nil
	}
	var sel Selection
	if err := json.Unmarshal(raw, &sel); err != nil {
		return Selection{}, fmt.Errorf("decode facet selection: %w", err)
	}
	if sel == nil {
		sel = Selection{}
	}
	return sel, nil
}
