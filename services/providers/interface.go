package providers

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyResponse is returned when the model reply carries no text segment.
var ErrEmptyResponse = errors.New("model returned no content")

// Provider represents a hosted multimodal model provider
type Provider interface {
	// Name returns the provider name (e.g., "bedrock")
	Name() string

	// Invoke sends one image and one prompt as a single user turn
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error)
}

// Image is a base64-encoded image block.
type Image struct {
	// MediaType is the MIME type (e.g., "image/png")
	MediaType string `json:"media_type"`

	// Data is the base64 payload without any data URI prefix
	Data string `json:"data"`
}

// InvokeRequest is a single-turn image+prompt request
type InvokeRequest struct {
	// Model overrides the provider's configured model when set
	Model string `json:"model,omitempty"`

	// Image to describe
	Image Image `json:"image"`

	// Prompt is the text block sent after the image
	Prompt string `json:"prompt"`

	// MaxTokens overrides the configured limit when positive
	MaxTokens int `json:"max_tokens,omitempty"`
}

// InvokeResponse is the model reply
type InvokeResponse struct {
	// Content is the text of the first reply segment
	Content string `json:"content"`

	// Model that served the request
	Model string `json:"model"`

	// StopReason as reported by the model (e.g., "end_turn", "max_tokens")
	StopReason string `json:"stop_reason,omitempty"`

	// Usage statistics
	Usage Usage `json:"usage"`

	// Provider that handled the request
	Provider string `json:"provider"`

	// Latency of the request
	Latency time.Duration `json:"latency"`
}

// Usage represents token usage statistics
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens is the sum of input and output tokens.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// Model identifier used when a request does not name one
	Model string

	// MaxTokens used when a request does not set one
	MaxTokens int

	// AnthropicVersion is sent in the Anthropic messages body
	AnthropicVersion string

	// Timeout for a single invocation; zero means the caller's deadline only
	Timeout time.Duration
}

const (
	DefaultModel            = "anthropic.claude-3-sonnet-20240229-v1:0"
	DefaultMaxTokens        = 1000
	DefaultAnthropicVersion = "bedrock-2023-05-31"
)

// DefaultProviderConfig returns the Claude 3 Sonnet defaults
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Model:            DefaultModel,
		MaxTokens:        DefaultMaxTokens,
		AnthropicVersion: DefaultAnthropicVersion,
	}
}

// WithDefaults fills unset fields from DefaultProviderConfig.
func (c ProviderConfig) WithDefaults() ProviderConfig {
	d := DefaultProviderConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.AnthropicVersion == "" {
		c.AnthropicVersion = d.AnthropicVersion
	}
	return c
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}
