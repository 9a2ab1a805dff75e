package search

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kailas-cloud/ragstream/internal/db"
	"github.com/kailas-cloud/ragstream/internal/domain/document"
	"github.com/kailas-cloud/ragstream/internal/domain/search/filter"
)

// DefaultContentField holds the document text in the index.
const DefaultContentField = "content"

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Config describes the layout of the document index.
type Config struct {
	IndexName      string
	KeyPrefix      string
	VectorField    string
	ContentField   string
	MetadataFields []string // empty returns every stored field
	NumericFields  []string // decoded as float64 when finite; others stay strings
}

// Repo implements usecase/retrieval.Repository.
type Repo struct {
	store   store
	cfg     Config
	numeric map[string]struct{}
}

// New creates a search repository.
func New(s store, cfg Config) *Repo {
	if cfg.ContentField == "" {
		cfg.ContentField = DefaultContentField
	}
	if cfg.VectorField == "" {
		cfg.VectorField = db.DefaultVectorField
	}
	numeric := make(map[string]struct{}, len(cfg.NumericFields))
	for _, f := range cfg.NumericFields {
		numeric[f] = struct{}{}
	}
	return &Repo{store: s, cfg: cfg, numeric: numeric}
}

// IndexName returns the configured index.
func (r *Repo) IndexName() string { return r.cfg.IndexName }

// SearchKNN runs a KNN search with the predicate as pre-filter and returns
// documents ordered by descending similarity, at most k of them.
func (r *Repo) SearchKNN(
	ctx context.Context, vector []float32, pred filter.Expression, k int,
) (document.ResultSet, error) {
	q := &db.KNNQuery{
		IndexName:    r.cfg.IndexName,
		VectorField:  r.cfg.VectorField,
		Filter:       pred,
		Vector:       vector,
		K:            k,
		ReturnFields: r.returnFields(),
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", r.cfg.IndexName, err)
	}

	return r.parseKNNResults(sr, k), nil
}

func (r *Repo) returnFields() []string {
	if len(r.cfg.MetadataFields) == 0 {
		return nil
	}
	fields := make([]string, 0, len(r.cfg.MetadataFields)+1)
	fields = append(fields, r.cfg.ContentField)
	for _, f := range r.cfg.MetadataFields {
		if f != r.cfg.ContentField {
			fields = append(fields, f)
		}
	}
	return fields
}

// parseKNNResults converts db.SearchResult into a sorted document.ResultSet.
func (r *Repo) parseKNNResults(sr *db.SearchResult, k int) document.ResultSet {
	if sr == nil || len(sr.Entries) == 0 {
		return document.ResultSet{}
	}

	docs := make([]document.Document, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		id := strings.TrimPrefix(entry.Key, r.cfg.KeyPrefix)
		docs = append(docs, r.parseEntryFields(id, entry))
	}

	return document.NewResultSet(docs, k)
}

// parseEntryFields parses a KNN entry from flat hash fields. Configured
// numeric fields become float64, everything else stays a string.
func (r *Repo) parseEntryFields(id string, entry db.SearchEntry) document.Document {
	var content string
	metadata := make(map[string]any, len(entry.Fields))

	for k, v := range entry.Fields {
		switch k {
		case r.cfg.ContentField:
			content = v
		case r.cfg.VectorField:
			// raw vector bytes are never surfaced
		default:
			metadata[k] = r.metadataValue(k, v)
		}
	}

	return document.New(id, content, metadata, entry.Score)
}

// metadataValue keeps identifiers like "08001" intact and never yields
// NaN or Inf, which JSON cannot encode.
func (r *Repo) metadataValue(field, raw string) any {
	if _, ok := r.numeric[field]; !ok {
		return raw
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return raw
	}
	return f
}
