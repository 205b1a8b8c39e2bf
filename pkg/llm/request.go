package llm

// ChatRequest represents a backend-agnostic converse request.
// Both the SDK and the raw HTTP backends translate it into the Bedrock
// Converse wire shape.
type ChatRequest struct {
	// Model identifier (e.g. "amazon.nova-lite-v1:0")
	Model string `json:"model"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// System prompt, sent as a separate system block
	System string `json:"system,omitempty"`

	// Inference parameters
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`

	// Tools the model may answer through. ToolChoice is "auto", "any" or the
	// name of a single tool; empty means "auto" when tools are set.
	Tools      []Tool `json:"tools,omitempty"`
	ToolChoice string `json:"tool_choice,omitempty"`
}

// Tool describes a function the model can call, with a JSON schema for its input.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

const (
	ToolChoiceAuto = "auto"
	ToolChoiceAny  = "any"
)

// Clone returns a copy of the request whose message history can be appended to
// without affecting the original.
func (r *ChatRequest) Clone() *ChatRequest {
	cp := *r
	cp.Messages = append([]Message(nil), r.Messages...)
	return &cp
}
