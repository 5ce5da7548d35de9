// Package types defines core types shared by the gateway and the inference proxy
package types

import (
	"time"
)

// Message represents a single message in the conversation
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatCompletionRequest represents an OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages" binding:"required"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stream      *bool     `json:"stream,omitempty"`
	Stop        any       `json:"stop,omitempty"`
	User        *string   `json:"user,omitempty"`

	// ModelHint carries the resolved complexity tier on the internal hop
	// between the gateway and the inference proxy. End clients never set it.
	ModelHint string `json:"model_hint,omitempty"`

	RequestID string `json:"-"` // Internal field, not serialized
}

// LastUserContent returns the content of the most recent user-role turn,
// or false when the conversation contains none.
func (r *ChatCompletionRequest) LastUserContent() (string, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content, true
		}
	}
	return "", false
}

// ChatCompletionResponse represents an OpenAI-compatible chat completion response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`

	Backend   string `json:"backend,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Cached    bool   `json:"cached,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// FirstChoiceContent returns the assistant text of the first choice, or ""
// when the response carries no usable text.
func (r *ChatCompletionResponse) FirstChoiceContent() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Choice represents a single response choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ComplexityTier is a discrete complexity bucket used to select a backend
type ComplexityTier string

const (
	TierSimple  ComplexityTier = "simple"
	TierMedium  ComplexityTier = "medium"
	TierComplex ComplexityTier = "complex"
)

// HealthState is the failover state machine record published by the health
// monitor and read by every dispatcher instance.
type HealthState struct {
	PrimaryHealthy      bool      `json:"primary_healthy"`
	FailoverActive      bool      `json:"failover_active"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastCheck           time.Time `json:"last_check"`
}

// Mode returns the failover mode label exposed on /health.
func (s HealthState) Mode() string {
	if s.FailoverActive {
		return "failover"
	}
	return "normal"
}
