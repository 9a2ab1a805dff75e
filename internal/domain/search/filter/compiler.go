package filter

import (
	"github.com/kailas-cloud/ragstream/internal/domain/facet"
)

// DefaultMatchAll is the sentinel tag carried by documents that apply
// regardless of any facet choice.
const DefaultMatchAll = "ALL"

// Compiler turns a facet selection into a metadata predicate.
type Compiler struct {
	known    []string
	matchAll string
}

// NewCompiler creates a Compiler for the known categories, in the order
// clauses should be emitted. An empty matchAll falls back to DefaultMatchAll.
func NewCompiler(known []string, matchAll string) *Compiler {
	if matchAll == "" {
		matchAll = DefaultMatchAll
	}
	k := make([]string, len(known))
	copy(k, known)
	return &Compiler{known: k, matchAll: matchAll}
}

// MatchAll returns the sentinel value.
func (c *Compiler) MatchAll() string { return c.matchAll }

// Compile builds AND(key IN [sentinel, ...names]) over the known categories.
// Unknown categories are ignored and categories without selections produce
// no clause. A category over the clause limits is left unfiltered and
// reported by Expression.Widened. The result never depends on map
// iteration order.
func (c *Compiler) Compile(sel facet.Selection) Expression {
	var e Expression
	for _, key := range c.known {
		values := c.values(sel[key])
		if len(values) == 0 {
			continue
		}
		clause, err := NewIn(key, values...)
		if err != nil || len(e.clauses) == MaxClauses {
			e.widened = append(e.widened, key)
			continue
		}
		e.clauses = append(e.clauses, clause)
	}
	return e
}

func (c *Compiler) values(selected []facet.Value) []string {
	if len(selected) == 0 {
		return nil
	}
	seen := map[string]bool{c.matchAll: true}
	values := []string{c.matchAll}
	for _, v := range selected {
		if v.Name == "" || seen[v.Name] {
			continue
		}
		seen[v.Name] = true
		values = append(values, v.Name)
	}
	if len(values) == 1 {
		return nil
	}
	return values
}
