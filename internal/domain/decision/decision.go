// Package decision chooses between a generic and a grounded answer.
package decision

import "github.com/kailas-cloud/ragstream/internal/domain/document"

// DefaultThreshold is the similarity cutoff used when none is configured.
const DefaultThreshold = 0.87

// Decision is the answer strategy selected for one request.
type Decision int

const (
	// Generic answers from the question alone.
	Generic Decision = iota
	// Grounded answers from retrieved context.
	Grounded
)

// String returns the lowercase name.
func (d Decision) String() string {
	switch d {
	case Generic:
		return "generic"
	case Grounded:
		return "grounded"
	default:
		return "unknown"
	}
}

// Decide returns Grounded when at least one result scores strictly above
// threshold, Generic otherwise. Only scores count, never the result count.
func Decide(results document.ResultSet, threshold float64) Decision {
	if len(Passing(results, threshold)) > 0 {
		return Grounded
	}
	return Generic
}

// Passing returns the results whose score is strictly greater than threshold.
func Passing(results document.ResultSet, threshold float64) document.ResultSet {
	var out document.ResultSet
	for _, r := range results {
		if r.Score() > threshold {
			out = append(out, r)
		}
	}
	return out
}
