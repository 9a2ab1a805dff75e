package answer

import (
	"context"
	"iter"

	"github.com/kailas-cloud/ragstream/internal/domain/chat"
	"github.com/kailas-cloud/ragstream/internal/domain/generation"
)

// mockGenerator records prompts and replays canned output.
type mockGenerator struct {
	completeText string
	completeErr  error
	fragments    []string
	streamErr    error // yielded after fragments

	lastMsgs []generation.Message
	lastOpts generation.Options
	yielded  int
}

func (m *mockGenerator) Complete(
	_ context.Context, msgs []generation.Message, opts generation.Options,
) (string, error) {
	m.lastMsgs, m.lastOpts = msgs, opts
	return m.completeText, m.completeErr
}

func (m *mockGenerator) Stream(
	_ context.Context, msgs []generation.Message, opts generation.Options,
) iter.Seq2[chat.Chunk, error] {
	m.lastMsgs, m.lastOpts = msgs, opts
	return func(yield func(chat.Chunk, error) bool) {
		for _, f := range m.fragments {
			m.yielded++
			if !yield(chat.Chunk{Text: f}, nil) {
				return
			}
		}
		if m.streamErr != nil {
			yield(chat.Chunk{}, m.streamErr)
		}
	}
}

func collect(seq iter.Seq2[chat.Chunk, error]) ([]string, error) {
	var out []string
	for c, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, c.Text)
	}
	return out, nil
}
