package ragstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kailas-cloud/ragstream/internal/version"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client is the ragstream SDK entry point. Safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	apiKey    string
	userAgent string
	obs       *observer
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	if baseURL == "" {
		return nil, errors.New("ragstream: base URL required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ragstream: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("ragstream: base URL must be http or https, got %q", baseURL)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = http.DefaultClient
	}
	ua := cfg.userAgent
	if ua == "" {
		ua = "ragstream-go/" + version.Version
	}

	return &Client{
		baseURL:   u,
		http:      hc,
		apiKey:    cfg.apiKey,
		userAgent: ua,
		obs:       obs,
	}, nil
}

// do sends a request and returns the response when the status is 2xx.
// Other statuses are decoded into an *APIError and the body is closed.
func (c *Client) do(ctx context.Context, method, path string, body any, accept string) (*http.Response, error) {
	resp, err := c.send(ctx, method, path, body, accept)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeAPIError(resp)
}

// send performs the request without looking at the status.
func (c *Client) send(ctx context.Context, method, path string, body any, accept string) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ragstream: encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("ragstream: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ragstream: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && (body.Code != "" || body.Message != "") {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) (err error) {
	start := time.Now()
	defer func() { c.obs.observe(op, start, err) }()

	resp, err := c.do(ctx, http.MethodGet, path, nil, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ragstream: decode %s response: %w", op, err)
	}
	return nil
}
