// Package sse writes pipeline output to a client as a Server-Sent Events stream.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/kailas-cloud/ragstream/internal/domain/document"
	"github.com/kailas-cloud/ragstream/internal/metrics"
)

// Frame kinds, also used as metric labels.
const (
	KindAnswer    = "data"
	KindCitations = "sourceDocs"
	KindSummary   = "summaryDocs"
	KindDone      = "done"
)

// DoneSentinel terminates every stream. It is sent verbatim, not as JSON.
const DoneSentinel = "[DONE]"

var (
	// ErrClosed is returned for writes after the terminator was sent.
	ErrClosed = errors.New("stream closed")
	// ErrStreamingUnsupported means the ResponseWriter cannot flush.
	ErrStreamingUnsupported = errors.New("streaming not supported")
)

type state int

const (
	stateIdle state = iota
	stateStreaming
	stateCompleting
	stateClosed
)

// Citation is the wire form of one source document.
type Citation struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

type answerFrame struct {
	Data string `json:"data"`
}

type citationsFrame struct {
	SourceDocs []Citation `json:"sourceDocs"`
}

type summaryFrame struct {
	SummaryDocs string `json:"summaryDocs"`
}

// Multiplexer serializes answer, citation and summary frames onto one
// response. Headers go out with the first frame; Close writes the
// terminator exactly once. Safe for concurrent use.
type Multiplexer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	state   state
	frames  int
	err     error // first write error; the client is gone
}

// New wraps w. It fails when w cannot flush partial responses.
func New(w http.ResponseWriter) (*Multiplexer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &Multiplexer{w: w, flusher: f}, nil
}

// Answer sends a {"data": text} frame.
func (m *Multiplexer) Answer(text string) error {
	return m.send(KindAnswer, answerFrame{Data: text})
}

// Summary sends a {"summaryDocs": text} frame.
func (m *Multiplexer) Summary(text string) error {
	return m.send(KindSummary, summaryFrame{SummaryDocs: text})
}

// Citations sends all docs as one {"sourceDocs": [...]} frame.
func (m *Multiplexer) Citations(docs []document.Document) error {
	out := make([]Citation, len(docs))
	for i, d := range docs {
		out[i] = Citation{Content: d.Content(), Metadata: encodableMetadata(d.Metadata())}
	}
	return m.send(KindCitations, citationsFrame{SourceDocs: out})
}

// encodableMetadata replaces NaN and Inf, which JSON cannot carry, with their
// string form. The input map is not modified.
func encodableMetadata(md map[string]any) map[string]any {
	var out map[string]any
	for k, v := range md {
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case float32:
			f = float64(n)
		default:
			continue
		}
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(md))
			for k2, v2 := range md {
				out[k2] = v2
			}
		}
		out[k] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	if out == nil {
		return md
	}
	return out
}

// Close ends the stream with the terminator. Later calls are no-ops.
// A stream that never sent a frame still gets headers and the terminator.
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateClosed {
		return nil
	}
	m.start()
	m.state = stateCompleting
	defer func() { m.state = stateClosed }()

	if m.err != nil {
		return m.err
	}
	return m.write(KindDone, []byte(DoneSentinel))
}

// Frames returns the number of JSON frames written, excluding the terminator.
func (m *Multiplexer) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Closed reports whether the terminator has been sent.
func (m *Multiplexer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateClosed
}

func (m *Multiplexer) send(kind string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", kind, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state >= stateCompleting {
		return ErrClosed
	}
	if m.err != nil {
		return m.err
	}
	m.start()
	if err := m.write(kind, payload); err != nil {
		return err
	}
	m.frames++
	return nil
}

// start moves Idle to Streaming and commits the headers.
func (m *Multiplexer) start() {
	if m.state != stateIdle {
		return
	}
	h := m.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	m.w.WriteHeader(http.StatusOK)
	m.state = stateStreaming
}

func (m *Multiplexer) write(kind string, payload []byte) error {
	buf := make([]byte, 0, len(payload)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')

	if _, err := m.w.Write(buf); err != nil {
		m.err = fmt.Errorf("write %s frame: %w", kind, err)
		return m.err
	}
	m.flusher.Flush()
	metrics.StreamFramesTotal.WithLabelValues(kind).Inc()
	return nil
}
