package llm

import (
	"encoding/json"
	"time"
)

// ChatResponse represents a backend-agnostic converse response.
type ChatResponse struct {
	// Model that generated the response
	Model string `json:"model"`

	// Response timestamp
	CreatedAt time.Time `json:"created_at,omitzero"`

	// The assistant's response message
	Message Message `json:"message"`

	// Stop reason (e.g. "end_turn", "max_tokens", "tool_use")
	StopReason string `json:"stop_reason,omitempty"`

	// Token usage and timing metrics
	Usage *Usage `json:"usage,omitempty"`

	// RawResponse preserves the original response payload for debugging.
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
}

// Usage contains token counts and timing information.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
	TotalTokens  int `json:"total_tokens,omitempty"`

	// Server side latency reported by Bedrock
	LatencyMs int64 `json:"latency_ms,omitempty"`
}

// ErrorResponse is the JSON body returned by the HTTP service on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
