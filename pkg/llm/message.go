package llm

// Message represents a single message in a conversation.
// Content is stored as an array of ContentBlocks so a reply can carry both
// text and tool use in a backend-agnostic way.
type Message struct {
	Role    string         `json:"role"`    // "user", "assistant"
	Content []ContentBlock `json:"content"` // Array of content blocks
}

// ContentBlock represents a single piece of content within a message.
// The Type field determines which other fields are populated.
type ContentBlock struct {
	Type string `json:"type"` // "text", "tool_use"

	// Text content (type="text")
	Text string `json:"text,omitempty"`

	// Tool use (type="tool_use") - the model answering through a tool schema
	ToolUseID string         `json:"tool_use_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	BlockText    = "text"
	BlockToolUse = "tool_use"
)

// NewTextMessage creates a simple text message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{Type: BlockText, Text: text},
		},
	}
}

// GetText returns the concatenated text content from all text blocks in the message.
// This is a convenience method for simple text-only messages.
func (m *Message) GetText() string {
	var result string
	for _, block := range m.Content {
		if block.Type == BlockText {
			result += block.Text
		}
	}
	return result
}
