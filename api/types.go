package api

import (
	"github.com/papercomputeco/converse/pkg/converse"
	"github.com/papercomputeco/converse/pkg/llm"
)

// Result is the envelope returned by every completion route.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`

	// Response is the full normalized completion, when there is one.
	Response *llm.ChatResponse `json:"response,omitempty"`
}

// GenerateRequest is the body of the POST /bedrock routes.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// MultiTurnData is the data of the multi-turn routes.
type MultiTurnData struct {
	FirstReply  string          `json:"firstReply"`
	SecondReply string          `json:"secondReply"`
	Turns       []converse.Turn `json:"turns"`
}

// StreamEvent is the payload of one SSE data event.
type StreamEvent struct {
	Text string `json:"text"`
}

func newMultiTurnData(turns []converse.Turn) MultiTurnData {
	data := MultiTurnData{Turns: turns}
	if len(turns) > 0 {
		data.FirstReply = turns[0].Reply
	}
	if len(turns) > 1 {
		data.SecondReply = turns[1].Reply
	}
	return data
}
