// Package document holds documents returned by similarity search.
package document

import (
	"maps"
	"sort"
)

// Metadata keys most indexes carry for citations.
const (
	MetaSource = "source"
	MetaPage   = "page"
)

// Document is a retrieved document (immutable value object).
// Metadata values are either string or float64.
type Document struct {
	id       string
	content  string
	metadata map[string]any
	score    float64
}

// New creates a Document. The score is clamped to [0,1].
func New(id, content string, metadata map[string]any, score float64) Document {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Document{
		id:       id,
		content:  content,
		metadata: metadata,
		score:    min(max(score, 0), 1),
	}
}

// ID returns the index key of the document (without the key prefix).
func (d *Document) ID() string { return d.id }

// Content returns the document text.
func (d *Document) Content() string { return d.content }

// Metadata returns a copy of the document metadata.
func (d *Document) Metadata() map[string]any { return maps.Clone(d.metadata) }

// Score returns the similarity score in [0,1].
func (d *Document) Score() float64 { return d.score }

// WithoutScore returns a copy with the score cleared.
func (d Document) WithoutScore() Document {
	d.score = 0
	return d
}

// ResultSet is a sequence of documents ordered by descending score.
type ResultSet []Document

// NewResultSet sorts docs by descending score (stable for ties) and keeps at most k.
func NewResultSet(docs []Document, k int) ResultSet {
	rs := make(ResultSet, len(docs))
	copy(rs, docs)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].score > rs[j].score })
	if k >= 0 && len(rs) > k {
		rs = rs[:k]
	}
	return rs
}

// TopScore returns the highest score, or 0 for an empty set.
func (rs ResultSet) TopScore() float64 {
	if len(rs) == 0 {
		return 0
	}
	return rs[0].score
}

// Documents returns the documents in order.
func (rs ResultSet) Documents() []Document { return rs }
