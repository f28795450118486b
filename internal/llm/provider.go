// Package llm provides a uniform call interface over per-vendor chat
// completion APIs. Providers are stateless: a single instance can be
// shared across experts and concurrent pipeline invocations.
package llm

import (
	"context"
	"fmt"
)

// OutputSchema carries a JSON schema used for provider-native
// structured output when the vendor supports it. When omitted from a
// Request, the caller is expected to fall back to tolerant parsing of
// free-form content.
type OutputSchema struct {
	Name   string
	Schema map[string]any
}

// Request is a single completion request to an LLM backend.
type Request struct {
	SystemPrompt string
	UserMessage  string
	MaxTokens    int
	Temperature  float64 // default 0
	OutputSchema *OutputSchema
}

// Response is the normalized result of an LLM execution.
type Response struct {
	Content      string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
}

// Provider is the core abstraction all vendor backends implement.
// Implementations MUST NOT retry internally; retry and fallback is the
// LLM service's job, not the adapter's.
type Provider interface {
	// Execute sends a completion request and returns the normalized response.
	Execute(ctx context.Context, req Request) (Response, error)

	// Name returns the provider identifier (e.g., "claude", "openai").
	Name() string

	// Model returns the configured model name.
	Model() string
}

// Error is the single error kind adapters translate every transport
// failure into. It carries the upstream message verbatim.
type Error struct {
	Provider string
	Model    string
	Upstream error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider error (model %s): %v", e.Provider, e.Model, e.Upstream)
}

func (e *Error) Unwrap() error {
	return e.Upstream
}

// ProviderConfig holds the construction-time options for a vendor adapter.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}
