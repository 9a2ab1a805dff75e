package openai

import (
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// ClientConfig is the connection part shared by the embedder and the generator.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	OrgID      string
	HTTPClient *http.Client
}

func newClient(cfg ClientConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.OrgID != "" {
		clientCfg.OrgID = cfg.OrgID
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	return openai.NewClientWithConfig(clientCfg)
}
