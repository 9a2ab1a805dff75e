// Package generation describes parameters of a generative model call.
package generation

import "fmt"

// Mode tells how the model output is consumed.
type Mode string

const (
	ModeComplete Mode = "complete"
	ModeStream   Mode = "stream"
)

// Options are sampling parameters for one model call.
type Options struct {
	Model            string
	Temperature      float32
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	MaxTokens        int
}

// Validate checks the ranges accepted by OpenAI-compatible APIs.
func (o Options) Validate() error {
	if o.Model == "" {
		return fmt.Errorf("model is required")
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0,2], got %v", o.Temperature)
	}
	if o.TopP < 0 || o.TopP > 1 {
		return fmt.Errorf("top_p must be in [0,1], got %v", o.TopP)
	}
	if o.FrequencyPenalty < -2 || o.FrequencyPenalty > 2 {
		return fmt.Errorf("frequency_penalty must be in [-2,2], got %v", o.FrequencyPenalty)
	}
	if o.PresencePenalty < -2 || o.PresencePenalty > 2 {
		return fmt.Errorf("presence_penalty must be in [-2,2], got %v", o.PresencePenalty)
	}
	if o.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d", o.MaxTokens)
	}
	return nil
}

// Role of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat prompt.
type Message struct {
	Role    Role
	Content string
}
