// internal/llm/interface.go
package llm

import (
	"context"
)

// CompletionRequest is the normalized request shape handed to a
// provider. The core only builds these; the calls themselves happen
// outside the mutation path and their results come back as ordinary
// graph operations.
type CompletionRequest struct {
	Prompt       string            `json:"prompt"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	MaxTokens    int               `json:"max_tokens,omitempty"`
	Temperature  float32           `json:"temperature,omitempty"`
	Model        string            `json:"model,omitempty"`
	StopWords    []string          `json:"stop_words,omitempty"`
	ExtraParams  map[string]string `json:"extra_params,omitempty"`
}

// CompletionResponse is the normalized provider response
type CompletionResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// Provider is the boundary to external text-generation services.
// Implementations live outside this module; the editor backend only
// prepares requests and consumes awaited results.
type Provider interface {
	// Initialize configures the provider
	Initialize(config map[string]string) error

	// GetName returns the provider identifier
	GetName() string

	// CompleteText generates a completion
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
