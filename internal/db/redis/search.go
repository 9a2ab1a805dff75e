package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragstream/internal/db"
	"github.com/kailas-cloud/ragstream/internal/domain/search/filter"
)

// scoreAlias is the name the KNN distance is returned under.
const scoreAlias = "__vector_score"

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	field := q.VectorField
	if field == "" {
		field = db.DefaultVectorField
	}

	filterStr := buildFilter(q.Filter)

	knnPart := fmt.Sprintf("[KNN %d @%s $BLOB AS %s]", q.K, field, scoreAlias)
	var queryStr string
	if filterStr != "" {
		queryStr = fmt.Sprintf("(%s)=>%s", filterStr, knnPart)
	} else {
		queryStr = fmt.Sprintf("*=>%s", knnPart)
	}

	args := []string{q.IndexName, queryStr}

	if len(q.ReturnFields) > 0 {
		// RETURN drops the score alias unless it is listed explicitly.
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)+1))
		args = append(args, q.ReturnFields...)
		args = append(args, scoreAlias)
	}

	args = append(args,
		"SORTBY", scoreAlias, "ASC",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseKNNResult(raw)
}

// --- Result parsing ---

func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, min(int(total), len(raw)/2))
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		}

		if scoreStr, ok := entry.Fields[scoreAlias]; ok {
			if d, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				entry.Score = min(max(0, 1.0-d), 1) // cosine distance → similarity, clamped to [0,1]
			}
			delete(entry.Fields, scoreAlias)
		}

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Filter building ---

// buildFilter translates filter.Expression into an FT.SEARCH pre-filter query string.
// Clauses are joined by spaces (intersection); values inside a clause are a TAG union.
func buildFilter(expr filter.Expression) string {
	if expr.IsEmpty() {
		return ""
	}

	parts := make([]string, 0, len(expr.Clauses()))
	for _, c := range expr.Clauses() {
		parts = append(parts, buildTagFilter(c.Key(), c.Values()))
	}
	return strings.Join(parts, " ")
}

func buildTagFilter(key string, values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = tagEscaper.Replace(v)
	}
	return fmt.Sprintf("@%s:{%s}", key, strings.Join(escaped, " | "))
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"[", "\\[",
	"]", "\\]",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	"/", "\\/",
	" ", "\\ ",
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
