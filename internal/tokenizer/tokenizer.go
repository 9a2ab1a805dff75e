// Package tokenizer counts model tokens to keep prompts inside a budget.
package tokenizer

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE used by current OpenAI chat and embedding models.
const DefaultEncoding = "cl100k_base"

// charsPerToken is the rough ratio for English prose under cl100k_base.
const charsPerToken = 4

// Counter measures and cuts text in model tokens.
type Counter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// BPE counts tokens with a tiktoken encoding.
type BPE struct {
	enc *tiktoken.Tiktoken
}

// NewBPE loads the named encoding. The first load may fetch the BPE ranks
// over the network unless TIKTOKEN_CACHE_DIR holds them.
func NewBPE(encoding string) (*BPE, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &BPE{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (b *BPE) Count(text string) int {
	return len(b.enc.Encode(text, nil, nil))
}

// Truncate keeps at most maxTokens leading tokens of text.
func (b *BPE) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := b.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return b.enc.Decode(tokens[:maxTokens])
}

// Estimator approximates tokens from the rune count.
type Estimator struct{}

// Count returns ceil(runes / 4).
func (Estimator) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// Truncate keeps at most maxTokens*4 leading runes.
func (Estimator) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	limit := maxTokens * charsPerToken
	i := 0
	for pos := range text {
		if i == limit {
			return text[:pos]
		}
		i++
	}
	return text
}

// New returns a BPE counter for encoding, or the Estimator when the encoding
// cannot be loaded. The load error is returned alongside the fallback so the
// caller can log it.
func New(encoding string) (Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	bpe, err := NewBPE(encoding)
	if err != nil {
		return Estimator{}, err
	}
	return bpe, nil
}
