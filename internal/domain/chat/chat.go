// Package chat holds the request and history types of one pipeline invocation.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragstream/internal/domain/facet"
)

// Turn is one past exchange of the conversation.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// UnmarshalJSON accepts either a ["question","answer"] pair or an object.
func (t *Turn) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "[") {
		var pair []string
		if err := json.Unmarshal(b, &pair); err != nil {
			return fmt.Errorf("decode history pair: %w", err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("history pair must have 2 elements, got %d", len(pair))
		}
		t.Question, t.Answer = pair[0], pair[1]
		return nil
	}

	type plain Turn
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("decode history turn: %w", err)
	}
	*t = Turn(p)
	return nil
}

// History is the caller-owned conversation, oldest first. It is read-only
// context and never persisted.
type History []Turn

// Request is one inbound question.
type Request struct {
	Question string
	History  History
	Filter   facet.Selection
}

// ErrEmptyQuestion is returned by Validate when the question is blank.
var ErrEmptyQuestion = errors.New("no question in the request")

// Validate checks the question is non-empty after trimming.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return ErrEmptyQuestion
	}
	return nil
}

// Chunk is an incremental unit of generated answer text.
type Chunk struct {
	Text string
}
