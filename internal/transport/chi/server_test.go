package chi

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain"
	domchat "github.com/kailas-cloud/ragstream/internal/domain/chat"
	"github.com/kailas-cloud/ragstream/internal/domain/decision"
	"github.com/kailas-cloud/ragstream/internal/domain/document"
	"github.com/kailas-cloud/ragstream/internal/domain/facet"
	"github.com/kailas-cloud/ragstream/internal/domain/generation"
	"github.com/kailas-cloud/ragstream/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstream/internal/usecase/answer"
	chatuc "github.com/kailas-cloud/ragstream/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/ragstream/internal/usecase/health"
)

// --- Fakes ---

type fakePipeline struct {
	calls int
	req   domchat.Request
	run   func(sink chatuc.Sink) (chatuc.Result, error)
}

func (f *fakePipeline) Run(_ context.Context, req domchat.Request, sink chatuc.Sink) (chatuc.Result, error) {
	f.calls++
	f.req = req
	if f.run == nil {
		return chatuc.Result{}, nil
	}
	return f.run(sink)
}

type fakeHealth struct {
	report healthuc.Report
}

func (f fakeHealth) Check(context.Context) healthuc.Report { return f.report }

var testVocab = facet.Vocabulary{
	{Name: "Interest", Values: []string{"Fire safety", "Energy"}},
	{Name: "Region", Values: []string{"Zurich", "Geneva"}},
}

func newRouter(p Pipeline, h HealthChecker) http.Handler {
	if h == nil {
		h = fakeHealth{report: healthuc.Report{Status: healthuc.Healthy}}
	}
	r := chi.NewRouter()
	NewServer(p, h, testVocab, zap.NewNop()).Routes(r)
	return r
}

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func sseEvents(body string) []string {
	var out []string
	for _, ev := range strings.Split(body, "\n\n") {
		if ev != "" {
			out = append(out, strings.TrimPrefix(ev, "data: "))
		}
	}
	return out
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

// --- POST /api/chat ---

func TestChat_EmptyQuestion_400(t *testing.T) {
	for _, body := range []string{`{}`, `{"question":""}`, `{"question":"   "}`} {
		p := &fakePipeline{}
		rr := postChat(t, newRouter(p, nil), body)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rr.Code)
		}
		resp := decodeError(t, rr)
		if resp.Code != CodeBadRequest || resp.Message != "No question in the request" {
			t.Errorf("%s: error = %+v", body, resp)
		}
		if p.calls != 0 {
			t.Errorf("%s: pipeline ran", body)
		}
		if strings.Contains(rr.Body.String(), "[DONE]") {
			t.Errorf("%s: stream opened", body)
		}
	}
}

func TestChat_InvalidBody_400(t *testing.T) {
	p := &fakePipeline{}
	rr := postChat(t, newRouter(p, nil), `{"question":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if decodeError(t, rr).Code != CodeBadRequest {
		t.Error("wrong error code")
	}
	if p.calls != 0 {
		t.Error("pipeline ran")
	}
}

func TestChat_StreamsFramesThenDone(t *testing.T) {
	p := &fakePipeline{run: func(sink chatuc.Sink) (chatuc.Result, error) {
		doc := document.New("a", "text", map[string]any{"source": "SIA 180", "page": 3}, 0.9)
		_ = sink.Citations([]document.Document{doc})
		_ = sink.Summary("Hello ")
		_ = sink.Summary("world")
		return chatuc.Result{Decision: decision.Grounded, Chunks: 2}, nil
	}}
	rr := postChat(t, newRouter(p, nil), `{"question":"q"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	want := []string{
		`{"sourceDocs":[{"content":"text","metadata":{"page":3,"source":"SIA 180"}}]}`,
		`{"summaryDocs":"Hello "}`,
		`{"summaryDocs":"world"}`,
		`[DONE]`,
	}
	got := sseEvents(rr.Body.String())
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("events:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestChat_FailureStillTerminates(t *testing.T) {
	p := &fakePipeline{run: func(sink chatuc.Sink) (chatuc.Result, error) {
		_ = sink.Answer("partial")
		return chatuc.Result{Chunks: 1}, domain.ErrGenerationFailed
	}}
	rr := postChat(t, newRouter(p, nil), `{"question":"q"}`)

	got := sseEvents(rr.Body.String())
	if len(got) != 2 || got[0] != `{"data":"partial"}` || got[1] != "[DONE]" {
		t.Errorf("events = %q", got)
	}
}

func TestChat_PanicStillTerminates(t *testing.T) {
	tests := []struct {
		name string
		run  func(sink chatuc.Sink) (chatuc.Result, error)
		want []string
	}{
		{
			name: "after frames",
			run: func(sink chatuc.Sink) (chatuc.Result, error) {
				_ = sink.Summary("partial")
				panic("generator exploded")
			},
			want: []string{`{"summaryDocs":"partial"}`, "[DONE]"},
		},
		{
			name: "before frames",
			run: func(chatuc.Sink) (chatuc.Result, error) {
				panic("generator exploded")
			},
			want: []string{"[DONE]"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{run: tt.run}
			rr := postChat(t, newRouter(p, nil), `{"question":"q"}`)

			if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
				t.Errorf("content type = %q", ct)
			}
			got := sseEvents(rr.Body.String())
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("events = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChat_RetrievalFailureBeforeFrames(t *testing.T) {
	p := &fakePipeline{run: func(chatuc.Sink) (chatuc.Result, error) {
		return chatuc.Result{}, domain.ErrRetrievalUnavailable
	}}
	rr := postChat(t, newRouter(p, nil), `{"question":"q"}`)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want the stream to open", rr.Code)
	}
	if rr.Body.String() != "data: [DONE]\n\n" {
		t.Errorf("body = %q", rr.Body.String())
	}
}

func TestChat_PipelineBadRequestBeforeFrames(t *testing.T) {
	p := &fakePipeline{run: func(chatuc.Sink) (chatuc.Result, error) {
		return chatuc.Result{}, domain.ErrBadRequest
	}}
	rr := postChat(t, newRouter(p, nil), `{"question":"q"}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "[DONE]") {
		t.Error("terminator written for a rejected request")
	}
}

func TestChat_ForwardsFilterAndHistory(t *testing.T) {
	p := &fakePipeline{}
	body := `{
		"question": "Fire doors?",
		"history": [["Hi","Hello"], {"question":"Zurich?","answer":"Yes"}],
		"filter": {"Region":[{"name":"Zurich","id":0}],"Interest":[]}
	}`
	rr := postChat(t, newRouter(p, nil), body)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if p.req.Question != "Fire doors?" {
		t.Errorf("question = %q", p.req.Question)
	}
	if len(p.req.History) != 2 || p.req.History[1].Answer != "Yes" {
		t.Errorf("history = %+v", p.req.History)
	}
	if got := p.req.Filter["Region"]; len(got) != 1 || got[0].Name != "Zurich" {
		t.Errorf("filter = %+v", p.req.Filter)
	}
}

func TestChat_MalformedFilterDegrades(t *testing.T) {
	p := &fakePipeline{}
	rr := postChat(t, newRouter(p, nil), `{"question":"q","filter":"Zurich"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if p.calls != 1 {
		t.Fatal("pipeline did not run")
	}
	if len(p.req.Filter) != 0 {
		t.Errorf("filter = %+v, want none", p.req.Filter)
	}
}

// --- End to end through the real pipeline ---

type stubRetriever struct {
	top  float64
	docs []document.Document
}

func (s stubRetriever) SearchWithScores(
	_ context.Context, _ string, k int, _ filter.Expression,
) (document.ResultSet, error) {
	return document.NewResultSet([]document.Document{document.New("d", "c", nil, s.top)}, k), nil
}

func (s stubRetriever) Search(context.Context, string, int, filter.Expression) ([]document.Document, error) {
	return s.docs, nil
}

type stubGenerator struct {
	complete string
	stream   []string
}

func (g stubGenerator) Complete(context.Context, []generation.Message, generation.Options) (string, error) {
	return g.complete, nil
}

func (g stubGenerator) Stream(
	context.Context, []generation.Message, generation.Options,
) iter.Seq2[domchat.Chunk, error] {
	return func(yield func(domchat.Chunk, error) bool) {
		for _, s := range g.stream {
			if !yield(domchat.Chunk{Text: s}, nil) {
				return
			}
		}
	}
}

func newPipeline(t *testing.T, r stubRetriever, gen stubGenerator) Pipeline {
	t.Helper()
	svc, err := chatuc.New(r,
		filter.NewCompiler(testVocab.Names(), filter.DefaultMatchAll),
		chatuc.Config{Threshold: decision.DefaultThreshold},
		zap.NewNop(),
		answer.NewGeneric(gen, answer.DefaultPersona, generation.Options{}),
		answer.NewGrounded(gen, answer.GroundedConfig{}),
	)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestChat_EndToEnd_Grounded(t *testing.T) {
	r := stubRetriever{top: 0.92, docs: []document.Document{
		document.New("a", "Minimum ceiling height is 2.40 m.", map[string]any{"source": "SIA 180"}, 0.92),
	}}
	gen := stubGenerator{stream: []string{"It is ", "2.40 m."}}
	rr := postChat(t, newRouter(newPipeline(t, r, gen), nil), `{"question":"What is the minimum ceiling height?"}`)

	got := sseEvents(rr.Body.String())
	want := []string{
		`{"sourceDocs":[{"content":"Minimum ceiling height is 2.40 m.","metadata":{"source":"SIA 180"}}]}`,
		`{"summaryDocs":"It is "}`,
		`{"summaryDocs":"2.40 m."}`,
		`[DONE]`,
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("events:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestChat_EndToEnd_Generic(t *testing.T) {
	r := stubRetriever{top: 0.2}
	gen := stubGenerator{complete: "Why did the architect cross the road?"}
	rr := postChat(t, newRouter(newPipeline(t, r, gen), nil), `{"question":"Tell me a joke"}`)

	got := sseEvents(rr.Body.String())
	if len(got) != 2 || got[0] != `{"data":"Why did the architect cross the road?"}` || got[1] != "[DONE]" {
		t.Errorf("events = %q", got)
	}
	if strings.Contains(rr.Body.String(), "sourceDocs") {
		t.Error("generic answer must not cite sources")
	}
}

// --- GET routes ---

func TestFacets(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(&fakePipeline{}, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/facets", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp FacetsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	region := resp.Data["Region"]
	if len(region) != 2 || region[1] != (facet.Value{Name: "Geneva", ID: 1}) {
		t.Errorf("Region = %+v", region)
	}
	if len(resp.Data["Interest"]) != 2 {
		t.Errorf("Interest = %+v", resp.Data["Interest"])
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		report healthuc.Report
		want   int
	}{
		{"healthy", healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{
			"database": healthuc.CheckOK,
		}}, http.StatusOK},
		{"degraded", healthuc.Report{Status: healthuc.Degraded, Checks: map[string]healthuc.CheckResult{
			"database": healthuc.CheckOK, "index": healthuc.CheckMissing,
		}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h := newRouter(&fakePipeline{}, fakeHealth{report: tt.report})
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != string(tt.report.Status) || len(resp.Checks) != len(tt.report.Checks) {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(&fakePipeline{}, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}
