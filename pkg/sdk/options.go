package ragstream

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	apiKey     string
	httpClient *http.Client
	userAgent  string

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithAPIKey sends key as a Bearer token.
func WithAPIKey(key string) Option {
	return optionFunc(func(c *clientConfig) {
		c.apiKey = key
	})
}

// WithHTTPClient replaces http.DefaultClient. Leave its Timeout at zero for
// long answers: a timeout covers reading the whole stream.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return optionFunc(func(c *clientConfig) {
		c.userAgent = ua
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
