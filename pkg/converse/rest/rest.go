// Package rest implements the converse.Client contract over raw HTTP against
// the Bedrock runtime endpoints. Streaming responses are decoded with
// deltastream.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/converse/pkg/awsauth"
	"github.com/papercomputeco/converse/pkg/converse"
	"github.com/papercomputeco/converse/pkg/deltastream"
	"github.com/papercomputeco/converse/pkg/llm"
	"github.com/papercomputeco/converse/pkg/utils"
)

// Name is the backend name reported to logs, metrics and events.
const Name = "rest"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// Config is the configuration for a REST client.
type Config struct {
	// Endpoint is the runtime base URL, e.g.
	// "https://bedrock-runtime.us-east-1.amazonaws.com".
	Endpoint string

	// Authorizer adds credentials to every request.
	Authorizer awsauth.Authorizer

	// Sentinel marks envelopes in the stream body.
	// Defaults to deltastream.DefaultSentinel.
	Sentinel string

	// HTTPClient defaults to a client without an overall timeout, since
	// streams stay open for the length of a completion.
	HTTPClient *http.Client

	// OnMalformed is called for every envelope that fails to parse.
	OnMalformed func(*deltastream.MalformedEnvelopeError)

	Logger *slog.Logger
}

// Client is a Bedrock Converse client over plain HTTP.
type Client struct {
	endpoint    *url.URL
	auth        awsauth.Authorizer
	sentinel    string
	http        *http.Client
	onMalformed func(*deltastream.MalformedEnvelopeError)
	logger      *slog.Logger
}

// New creates a REST client.
func New(c Config) (*Client, error) {
	if c.Endpoint == "" {
		return nil, fmt.Errorf("rest: endpoint is required")
	}
	u, err := url.Parse(strings.TrimSuffix(c.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("rest: parsing endpoint: %w", err)
	}
	if c.Authorizer == nil {
		return nil, awsauth.ErrNoCredentials
	}

	client := &Client{
		endpoint:    u,
		auth:        c.Authorizer,
		sentinel:    c.Sentinel,
		http:        c.HTTPClient,
		onMalformed: c.OnMalformed,
		logger:      c.Logger,
	}
	if client.sentinel == "" {
		client.sentinel = deltastream.DefaultSentinel
	}
	if client.http == nil {
		client.http = &http.Client{}
	}
	if client.logger == nil {
		client.logger = slog.New(slog.DiscardHandler)
	}

	return client, nil
}

func (c *Client) Name() string { return Name }

// Converse calls POST /model/{modelId}/converse.
func (c *Client) Converse(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := c.do(ctx, req, "converse")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading converse response: %w", err)
	}

	var out converseResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding converse response: %w", err)
	}
	if out.Output.Message == nil {
		return nil, converse.ErrNoContent
	}

	chat := &llm.ChatResponse{
		Model:       req.Model,
		CreatedAt:   time.Now(),
		Message:     fromWireMessage(*out.Output.Message),
		StopReason:  out.StopReason,
		RawResponse: raw,
	}
	if out.Usage != nil {
		chat.Usage = &llm.Usage{
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
			TotalTokens:  out.Usage.TotalTokens,
		}
		if out.Metrics != nil {
			chat.Usage.LatencyMs = out.Metrics.LatencyMs
		}
	}

	return chat, nil
}

// ConverseStream calls POST /model/{modelId}/converse-stream and returns a
// stream of text deltas decoded from the response body. An exception event
// inside the body ends the stream with a *deltastream.StreamException.
// Closing the stream closes the connection.
func (c *Client) ConverseStream(ctx context.Context, req *llm.ChatRequest) (converse.Stream, error) {
	resp, err := c.do(ctx, req, "converse-stream")
	if err != nil {
		return nil, err
	}

	opts := []deltastream.Option{deltastream.WithExceptions()}
	if c.onMalformed != nil {
		opts = append(opts, deltastream.WithDiagnostics(c.onMalformed))
	}

	return deltastream.NewDecoder(resp.Body, c.sentinel, opts...), nil
}

// do sends the request and returns the response when the status is 2xx.
// Any other status is drained into a converse.StatusError.
func (c *Client) do(ctx context.Context, req *llm.ChatRequest, action string) (*http.Response, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("rest: model is required")
	}

	body, err := json.Marshal(toWireRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encoding converse request: %w", err)
	}

	u := *c.endpoint
	u.Path = c.endpoint.Path + "/model/" + req.Model + "/" + action
	u.RawPath = c.endpoint.EscapedPath() + "/model/" + url.PathEscape(req.Model) + "/" + action

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", utils.UserAgent())
	if action == "converse-stream" {
		httpReq.Header.Set("Accept", "application/vnd.amazon.eventstream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	if err := c.auth.Authorize(ctx, httpReq, body); err != nil {
		return nil, err
	}

	c.logger.Debug("sending converse request",
		"backend", Name,
		"action", action,
		"model", req.Model,
		"messages", len(req.Messages),
	)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending %s request: %w", action, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &converse.StatusError{StatusCode: resp.StatusCode, Body: errorMessage(raw)}
	}

	return resp, nil
}

func errorMessage(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Message != "" {
		return eb.Message
	}
	return strings.TrimSpace(string(raw))
}

func toWireRequest(req *llm.ChatRequest) *converseRequest {
	out := &converseRequest{
		Messages: make([]wireMessage, 0, len(req.Messages)),
	}

	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, toWireMessage(msg))
	}

	if req.System != "" {
		out.System = []wireSystem{{Text: req.System}}
	}

	if req.MaxTokens != nil || req.Temperature != nil || req.TopP != nil || len(req.Stop) > 0 {
		out.InferenceConfig = &inferenceConfig{
			MaxTokens:     req.MaxTokens,
			Temperature:   req.Temperature,
			TopP:          req.TopP,
			StopSequences: req.Stop,
		}
	}

	if len(req.Tools) > 0 {
		tc := &toolConfig{Tools: make([]wireTool, 0, len(req.Tools))}
		for _, t := range req.Tools {
			tc.Tools = append(tc.Tools, wireTool{ToolSpec: wireToolSpec{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: wireInputSchema{JSON: t.InputSchema},
			}})
		}

		switch req.ToolChoice {
		case "", llm.ToolChoiceAuto:
			tc.ToolChoice = &wireToolChoice{Auto: &struct{}{}}
		case llm.ToolChoiceAny:
			tc.ToolChoice = &wireToolChoice{Any: &struct{}{}}
		default:
			tc.ToolChoice = &wireToolChoice{Tool: &wireToolName{Name: req.ToolChoice}}
		}
		out.ToolConfig = tc
	}

	return out
}

func toWireMessage(msg llm.Message) wireMessage {
	wm := wireMessage{Role: msg.Role, Content: make([]wireContentBlock, 0, len(msg.Content))}
	for _, block := range msg.Content {
		switch block.Type {
		case llm.BlockText:
			text := block.Text
			wm.Content = append(wm.Content, wireContentBlock{Text: &text})
		case llm.BlockToolUse:
			wm.Content = append(wm.Content, wireContentBlock{ToolUse: &wireToolUse{
				ToolUseID: block.ToolUseID,
				Name:      block.ToolName,
				Input:     block.ToolInput,
			}})
		}
	}
	return wm
}

func fromWireMessage(wm wireMessage) llm.Message {
	msg := llm.Message{Role: wm.Role}
	for _, block := range wm.Content {
		switch {
		case block.ToolUse != nil:
			msg.Content = append(msg.Content, llm.ContentBlock{
				Type:      llm.BlockToolUse,
				ToolUseID: block.ToolUse.ToolUseID,
				ToolName:  block.ToolUse.Name,
				ToolInput: block.ToolUse.Input,
			})
		case block.Text != nil:
			msg.Content = append(msg.Content, llm.ContentBlock{Type: llm.BlockText, Text: *block.Text})
		}
	}
	return msg
}
