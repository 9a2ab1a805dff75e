package chat

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"

	"go.uber.org/zap"

	domchat "github.com/kailas-cloud/ragstream/internal/domain/chat"
	"github.com/kailas-cloud/ragstream/internal/domain/decision"
	"github.com/kailas-cloud/ragstream/internal/domain/document"
	"github.com/kailas-cloud/ragstream/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstream/internal/usecase/answer"
)

// --- Mocks ---

type searchCall struct {
	query string
	k     int
	pred  filter.Expression
}

type mockRetriever struct {
	mu        sync.Mutex
	scores    []float64
	docs      []document.Document
	gateErr   error
	searchErr error
	calls     []searchCall
}

func (m *mockRetriever) SearchWithScores(
	_ context.Context, query string, k int, pred filter.Expression,
) (document.ResultSet, error) {
	m.mu.Lock()
	m.calls = append(m.calls, searchCall{query, k, pred})
	m.mu.Unlock()
	if m.gateErr != nil {
		return nil, m.gateErr
	}
	docs := make([]document.Document, len(m.scores))
	for i, s := range m.scores {
		docs[i] = document.New("d", "content", nil, s)
	}
	return document.NewResultSet(docs, k), nil
}

func (m *mockRetriever) Search(
	_ context.Context, query string, k int, pred filter.Expression,
) ([]document.Document, error) {
	m.mu.Lock()
	m.calls = append(m.calls, searchCall{query, k, pred})
	m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.docs, nil
}

type fakeStrategy struct {
	kind    decision.Decision
	chunks  []string
	err     error
	yielded int
	lastIn  answer.Input
}

func (f *fakeStrategy) Kind() decision.Decision { return f.kind }

func (f *fakeStrategy) Answer(_ context.Context, in answer.Input) iter.Seq2[domchat.Chunk, error] {
	f.lastIn = in
	return func(yield func(domchat.Chunk, error) bool) {
		for _, c := range f.chunks {
			f.yielded++
			if !yield(domchat.Chunk{Text: c}, nil) {
				return
			}
		}
		if f.err != nil {
			yield(domchat.Chunk{}, f.err)
		}
	}
}

type frame struct {
	kind string
	text string
	docs []document.Document
}

type recordingSink struct {
	frames  []frame
	failOn  int // fail the n-th write (1-based); 0 never fails
	written int
}

var errClientGone = errors.New("client gone")

func (s *recordingSink) write(f frame) error {
	s.written++
	if s.failOn > 0 && s.written >= s.failOn {
		return errClientGone
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) Answer(text string) error { return s.write(frame{kind: "data", text: text}) }
func (s *recordingSink) Summary(text string) error {
	return s.write(frame{kind: "summaryDocs", text: text})
}
func (s *recordingSink) Citations(docs []document.Document) error {
	return s.write(frame{kind: "sourceDocs", docs: docs})
}

func (s *recordingSink) kinds() []string {
	out := make([]string, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.kind
	}
	return out
}

func newTestService(
	t *testing.T, r *mockRetriever, generic, grounded *fakeStrategy, cfg Config,
) *Service {
	t.Helper()
	if cfg.Threshold == 0 {
		cfg.Threshold = decision.DefaultThreshold
	}
	svc, err := New(r, filter.NewCompiler([]string{"Interest", "Region", "SubRegion"}, filter.DefaultMatchAll),
		cfg, zap.NewNop(), generic, grounded)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}
