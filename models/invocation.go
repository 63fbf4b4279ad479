package models

import (
	"time"

	"github.com/google/uuid"
)

// InvocationStatus represents the outcome of a model invocation
type InvocationStatus string

const (
	InvocationStatusCompleted InvocationStatus = "completed"
	InvocationStatusFailed    InvocationStatus = "failed"
	InvocationStatusRejected  InvocationStatus = "rejected" // Malformed image, model not called
)

// Invocation is one image+prompt model call. Image bytes and prompt text are
// not stored.
type Invocation struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	RequestID string           `json:"request_id" db:"request_id"`
	Status    InvocationStatus `json:"status" db:"status"`

	// Provider details
	Provider string `json:"provider" db:"provider"`
	Model    string `json:"model" db:"model"`

	// Request shape
	MediaType    string `json:"media_type" db:"media_type"`
	ImageBytes   int    `json:"image_bytes" db:"image_bytes"` // Length of the base64 payload
	PromptLength int    `json:"prompt_length" db:"prompt_length"`

	// Metrics
	InputTokens  int     `json:"input_tokens" db:"input_tokens"`
	OutputTokens int     `json:"output_tokens" db:"output_tokens"`
	StopReason   *string `json:"stop_reason,omitempty" db:"stop_reason"`
	LatencyMs    int     `json:"latency_ms" db:"latency_ms"`

	// Error handling
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// TableName returns the table name for the Invocation model
func (Invocation) TableName() string {
	return "invocations"
}

// NewInvocation creates a new Invocation instance
func NewInvocation(requestID, provider, model string, promptLength int) *Invocation {
	return &Invocation{
		ID:           uuid.New(),
		RequestID:    requestID,
		Provider:     provider,
		Model:        model,
		PromptLength: promptLength,
		CreatedAt:    time.Now(),
	}
}

// SetImage records the image shape
func (i *Invocation) SetImage(mediaType string, size int) {
	i.MediaType = mediaType
	i.ImageBytes = size
}

// MarkAsCompleted marks the invocation as completed
func (i *Invocation) MarkAsCompleted(stopReason string, inputTokens, outputTokens, latencyMs int) {
	i.Status = InvocationStatusCompleted
	if stopReason != "" {
		i.StopReason = &stopReason
	}
	i.InputTokens = inputTokens
	i.OutputTokens = outputTokens
	i.LatencyMs = latencyMs
	i.complete()
}

// MarkAsFailed marks the invocation as failed
func (i *Invocation) MarkAsFailed(errorMessage string, latencyMs int) {
	i.Status = InvocationStatusFailed
	i.ErrorMessage = &errorMessage
	i.LatencyMs = latencyMs
	i.complete()
}

// MarkAsRejected marks the invocation as rejected before reaching the model
func (i *Invocation) MarkAsRejected(reason string) {
	i.Status = InvocationStatusRejected
	i.ErrorMessage = &reason
	i.complete()
}

// TotalTokens is the sum of input and output tokens
func (i *Invocation) TotalTokens() int {
	return i.InputTokens + i.OutputTokens
}

func (i *Invocation) complete() {
	now := time.Now()
	i.CompletedAt = &now
}
