package filter

import (
	"encoding/json"
	"fmt"
)

// MaxClauses is the maximum number of clauses in one expression.
const MaxClauses = 32

// MaxValuesPerClause is the maximum number of values in one IN-set.
const MaxValuesPerClause = 64

// Expression is a conjunction of IN-set clauses:
// AND(key1 IN [...], key2 IN [...], ...). The zero value is the empty
// conjunction and matches every document.
type Expression struct {
	clauses []Clause
	widened []string
}

// NewExpression validates and creates an Expression. Clause keys must be unique.
func NewExpression(clauses ...Clause) (Expression, error) {
	if len(clauses) > MaxClauses {
		return Expression{}, fmt.Errorf("too many clauses (max %d)", MaxClauses)
	}
	seen := make(map[string]bool, len(clauses))
	for _, c := range clauses {
		if seen[c.key] {
			return Expression{}, fmt.Errorf("duplicate clause for key %q", c.key)
		}
		seen[c.key] = true
	}
	return Expression{clauses: clauses}, nil
}

// Clauses returns the clauses in order.
func (e Expression) Clauses() []Clause { return e.clauses }

// Widened returns the categories whose selection was dropped because it
// exceeded a clause limit. Those categories match every document.
func (e Expression) Widened() []string { return e.widened }

// IsEmpty reports whether the expression has no clauses.
func (e Expression) IsEmpty() bool { return len(e.clauses) == 0 }

// Clause returns the clause for key, if any.
func (e Expression) Clause(key string) (Clause, bool) {
	for _, c := range e.clauses {
		if c.key == key {
			return c, true
		}
	}
	return Clause{}, false
}

// MarshalJSON renders the Mongo-style form accepted by hosted vector indexes:
// {"$and":[{"Region":{"$in":["ALL","Zurich"]}}]}.
func (e Expression) MarshalJSON() ([]byte, error) {
	and := make([]map[string]map[string][]string, 0, len(e.clauses))
	for _, c := range e.clauses {
		and = append(and, map[string]map[string][]string{
			c.key: {"$in": c.values},
		})
	}
	//nolint:wrapcheck // plain value encoding
	return json.Marshal(map[string]any{"$and": and})
}

// String returns the JSON form for logging.
func (e Expression) String() string {
	b, err := e.MarshalJSON()
	if err != nil {
		return "<invalid filter>"
	}
	return string(b)
}

// Clause restricts a metadata key to a set of values.
type Clause struct {
	key    string
	values []string
}

// NewIn creates a clause matching documents whose key is any of values.
func NewIn(key string, values ...string) (Clause, error) {
	if key == "" {
		return Clause{}, fmt.Errorf("filter key is required")
	}
	if len(values) == 0 {
		return Clause{}, fmt.Errorf("at least one value is required for key %q", key)
	}
	if len(values) > MaxValuesPerClause {
		return Clause{}, fmt.Errorf("too many values for key %q (max %d)", key, MaxValuesPerClause)
	}
	for _, v := range values {
		if v == "" {
			return Clause{}, fmt.Errorf("empty value for key %q", key)
		}
	}
	return Clause{key: key, values: values}, nil
}

// Key returns the metadata field name.
func (c Clause) Key() string { return c.key }

// Values returns the accepted values.
func (c Clause) Values() []string { return c.values }
