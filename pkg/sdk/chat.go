package ragstream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// FrameKind tells answer text, sources and grounded text apart.
type FrameKind string

// Frame kinds, named after their JSON keys.
const (
	FrameAnswer  FrameKind = "data"
	FrameSources FrameKind = "sourceDocs"
	FrameSummary FrameKind = "summaryDocs"
)

// doneSentinel is the literal payload of the final event.
const doneSentinel = "[DONE]"

// maxEventSize bounds one SSE line.
const maxEventSize = 1 << 20

// Turn is one earlier exchange of the conversation.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ChatRequest is one question with optional history and facet filter.
type ChatRequest struct {
	Question string                  `json:"question"`
	History  []Turn                  `json:"history,omitempty"`
	Filter   map[string][]FacetValue `json:"filter,omitempty"`
}

// Source is a document the grounded answer was built from.
type Source struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Frame is one decoded stream event. Text is set for answer and summary
// frames, Sources for source frames.
type Frame struct {
	Kind    FrameKind
	Text    string
	Sources []Source
}

// Chat sends req and returns the open answer stream. A blank question
// fails with ErrBadRequest before any stream is opened.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (_ *Stream, err error) {
	start := time.Now()
	defer func() { c.obs.observe("chat", start, err) }()

	resp, err := c.do(ctx, http.MethodPost, "/api/chat", req, "text/event-stream")
	if err != nil {
		return nil, err
	}
	return newStream(resp.Body), nil
}

// Answer is a fully read stream.
type Answer struct {
	Text     string
	Grounded bool // true when the text came from summaryDocs frames
	Sources  []Source
}

// Collect reads the whole answer to req. Frames received before a failure
// are returned alongside the error.
func (c *Client) Collect(ctx context.Context, req ChatRequest) (Answer, error) {
	stream, err := c.Chat(ctx, req)
	if err != nil {
		return Answer{}, err
	}
	defer stream.Close()

	var (
		ans Answer
		sb  strings.Builder
	)
	for stream.Next() {
		f := stream.Frame()
		switch f.Kind {
		case FrameSources:
			ans.Sources = append(ans.Sources, f.Sources...)
		case FrameSummary:
			ans.Grounded = true
			sb.WriteString(f.Text)
		case FrameAnswer:
			sb.WriteString(f.Text)
		}
	}
	ans.Text = sb.String()
	return ans, stream.Err()
}

// Stream iterates over the frames of one answer. It is not safe for
// concurrent use, except Close which may be called from another goroutine
// to abort.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	frame   Frame
	err     error
	done    bool

	closeOnce sync.Once
}

func newStream(body io.ReadCloser) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 4096), maxEventSize)
	return &Stream{body: body, scanner: sc}
}

// Next advances to the next frame. It returns false at [DONE], on error, or
// after Close.
func (s *Stream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	for {
		payload, ok := s.readEvent()
		if !ok {
			return false
		}
		if payload == doneSentinel {
			s.done = true
			_ = s.Close()
			return false
		}
		f, err := decodeFrame(payload)
		if err != nil {
			s.err = err
			return false
		}
		if f.Kind == "" {
			// unknown frame kinds are skipped
			continue
		}
		s.frame = f
		return true
	}
}

// Frame returns the frame read by the last successful Next.
func (s *Stream) Frame() Frame { return s.frame }

// Err returns the first error. A stream that ended without [DONE] reports
// ErrIncompleteStream.
func (s *Stream) Err() error { return s.err }

// Done reports whether the terminator was received.
func (s *Stream) Done() bool { return s.done }

// Close releases the connection. Safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}

// readEvent returns the data of the next event, joining multi-line data.
func (s *Stream) readEvent() (string, bool) {
	var data []string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				return strings.Join(data, "\n"), true
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// comments, event names and ids carry nothing for this protocol
		}
	}
	if err := s.scanner.Err(); err != nil {
		s.err = fmt.Errorf("ragstream: read stream: %w", err)
		return "", false
	}
	if len(data) > 0 {
		return strings.Join(data, "\n"), true
	}
	s.err = ErrIncompleteStream
	return "", false
}

func decodeFrame(payload string) (Frame, error) {
	var raw struct {
		Data        *string  `json:"data"`
		SourceDocs  []Source `json:"sourceDocs"`
		SummaryDocs *string  `json:"summaryDocs"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Frame{}, fmt.Errorf("ragstream: decode frame %q: %w", payload, err)
	}
	switch {
	case raw.Data != nil:
		return Frame{Kind: FrameAnswer, Text: *raw.Data}, nil
	case raw.SummaryDocs != nil:
		return Frame{Kind: FrameSummary, Text: *raw.SummaryDocs}, nil
	case raw.SourceDocs != nil:
		return Frame{Kind: FrameSources, Sources: raw.SourceDocs}, nil
	default:
		return Frame{}, nil
	}
}
