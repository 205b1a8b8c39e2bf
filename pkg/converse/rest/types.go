package rest

// converseRequest is the JSON body of POST /model/{modelId}/converse and
// /converse-stream. The model is in the URL path, not the body.
type converseRequest struct {
	Messages        []wireMessage    `json:"messages"`
	System          []wireSystem     `json:"system,omitempty"`
	InferenceConfig *inferenceConfig `json:"inferenceConfig,omitempty"`
	ToolConfig      *toolConfig      `json:"toolConfig,omitempty"`
}

type wireMessage struct {
	Role    string             `json:"role"`
	Content []wireContentBlock `json:"content"`
}

// wireContentBlock is a union: exactly one of Text or ToolUse is set.
type wireContentBlock struct {
	Text    *string      `json:"text,omitempty"`
	ToolUse *wireToolUse `json:"toolUse,omitempty"`
}

type wireToolUse struct {
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

type wireSystem struct {
	Text string `json:"text"`
}

type inferenceConfig struct {
	MaxTokens     *int     `json:"maxTokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"topP,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`
}

type toolConfig struct {
	Tools      []wireTool      `json:"tools"`
	ToolChoice *wireToolChoice `json:"toolChoice,omitempty"`
}

type wireTool struct {
	ToolSpec wireToolSpec `json:"toolSpec"`
}

type wireToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema wireInputSchema `json:"inputSchema"`
}

type wireInputSchema struct {
	JSON map[string]any `json:"json"`
}

// wireToolChoice is a union: auto, any, or a named tool.
type wireToolChoice struct {
	Auto *struct{}     `json:"auto,omitempty"`
	Any  *struct{}     `json:"any,omitempty"`
	Tool *wireToolName `json:"tool,omitempty"`
}

type wireToolName struct {
	Name string `json:"name"`
}

// converseResponse is the body of a successful non-streaming converse call.
type converseResponse struct {
	Output struct {
		Message *wireMessage `json:"message"`
	} `json:"output"`
	StopReason string     `json:"stopReason"`
	Usage      *wireUsage `json:"usage,omitempty"`
	Metrics    *struct {
		LatencyMs int64 `json:"latencyMs"`
	} `json:"metrics,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// errorBody is the shape Bedrock uses for error responses.
type errorBody struct {
	Message string `json:"message"`
}
