package converse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/papercomputeco/converse/pkg/llm"
)

// Collect drains a stream into a single string and closes it.
func Collect(stream Stream) (string, error) {
	defer stream.Close()

	var sb strings.Builder
	for {
		text, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(text)
	}
}

// Forward writes every delta of stream to w as it arrives, calling onDelta
// (if non-nil) after each successful write. The stream is closed on return,
// including when w fails because the reader went away.
func Forward(stream Stream, w io.Writer, onDelta func(string)) error {
	defer stream.Close()

	for {
		text, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, text); err != nil {
			return fmt.Errorf("writing delta: %w", err)
		}
		if onDelta != nil {
			onDelta(text)
		}
	}
}

// Turn is one exchange of a multi-turn conversation.
type Turn struct {
	Prompt string `json:"prompt"`
	Reply  string `json:"reply"`
}

// MultiTurn sends each prompt in order, appending every assistant reply to
// the history before the next prompt. base supplies the model, system prompt,
// inference parameters and any earlier history; it is not modified.
func MultiTurn(ctx context.Context, client Client, base *llm.ChatRequest, prompts []string) ([]Turn, *llm.ChatResponse, error) {
	req := base.Clone()
	turns := make([]Turn, 0, len(prompts))

	var last *llm.ChatResponse
	for i, prompt := range prompts {
		req.Messages = append(req.Messages, llm.NewTextMessage(llm.RoleUser, prompt))

		resp, err := client.Converse(ctx, req)
		if err != nil {
			return turns, last, fmt.Errorf("turn %d: %w", i+1, err)
		}

		reply := resp.Message.GetText()
		if reply == "" {
			return turns, resp, fmt.Errorf("turn %d: %w", i+1, ErrNoContent)
		}

		req.Messages = append(req.Messages, llm.NewTextMessage(llm.RoleAssistant, reply))
		turns = append(turns, Turn{Prompt: prompt, Reply: reply})
		last = resp
	}

	return turns, last, nil
}

// StructuredResult is the interpretation of a tool-calling reply.
type StructuredResult struct {
	// Text is the last text block of the reply, if any.
	Text string `json:"text,omitempty"`

	// Data is the input of the last tool_use block, if any.
	Data map[string]any `json:"data,omitempty"`
}

// Structured extracts the tool input and free text from resp. The last block of
// each kind wins. ErrNoContent is returned when neither is present.
func Structured(resp *llm.ChatResponse) (StructuredResult, error) {
	var result StructuredResult
	if resp == nil {
		return result, ErrNoContent
	}

	for _, block := range resp.Message.Content {
		switch block.Type {
		case llm.BlockToolUse:
			if block.ToolInput != nil {
				result.Data = block.ToolInput
			}
		case llm.BlockText:
			if block.Text != "" {
				result.Text = block.Text
			}
		}
	}

	if result.Data == nil && result.Text == "" {
		return result, ErrNoContent
	}
	return result, nil
}
