// Package sdk implements the converse.Client contract with the AWS SDK for Go
// v2 bedrockruntime client.
package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/papercomputeco/converse/pkg/converse"
	"github.com/papercomputeco/converse/pkg/llm"
	"github.com/papercomputeco/converse/pkg/utils"
)

// Name is the backend name reported to logs, metrics and events.
const Name = "sdk"

// Runtime is the subset of *bedrockruntime.Client used by this backend.
type Runtime interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Config is the configuration for an SDK client.
type Config struct {
	Region string

	// Endpoint overrides the runtime endpoint, mainly for testing.
	Endpoint string

	// AccessKeyID and SecretAccessKey, when both set, replace the default
	// credential chain with static credentials.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	Logger *slog.Logger
}

// Client is a Bedrock Converse client backed by the AWS SDK.
type Client struct {
	runtime Runtime
	logger  *slog.Logger
}

// New loads the AWS configuration and creates a bedrockruntime client.
func New(ctx context.Context, c Config) (*Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(c.Region),
		config.WithAppID(utils.AppID()),
	}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	runtime := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})

	return NewWithRuntime(runtime, c.Logger), nil
}

// NewWithRuntime wraps an existing runtime client.
func NewWithRuntime(runtime Runtime, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{runtime: runtime, logger: logger}
}

func (c *Client) Name() string { return Name }

// Converse runs a single completion through bedrockruntime.Converse.
func (c *Client) Converse(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	in, err := converseInput(req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("sending converse request", "backend", Name, "model", req.Model, "messages", len(req.Messages))

	out, err := c.runtime.Converse(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, converse.ErrNoContent
	}

	message, err := fromSDKMessage(msg.Value)
	if err != nil {
		return nil, err
	}

	resp := &llm.ChatResponse{
		Model:      req.Model,
		CreatedAt:  time.Now(),
		Message:    message,
		StopReason: string(out.StopReason),
		Usage:      usage(out.Usage),
	}
	if resp.Usage != nil && out.Metrics != nil && out.Metrics.LatencyMs != nil {
		resp.Usage.LatencyMs = *out.Metrics.LatencyMs
	}

	return resp, nil
}

// ConverseStream starts bedrockruntime.ConverseStream and adapts its event
// stream to converse.Stream.
func (c *Client) ConverseStream(ctx context.Context, req *llm.ChatRequest) (converse.Stream, error) {
	in, err := converseInput(req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("sending converse stream request", "backend", Name, "model", req.Model, "messages", len(req.Messages))

	out, err := c.runtime.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         in.ModelId,
		Messages:        in.Messages,
		System:          in.System,
		InferenceConfig: in.InferenceConfig,
		ToolConfig:      in.ToolConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock converse stream: %w", err)
	}

	return NewStream(out.GetStream()), nil
}

func converseInput(req *llm.ChatRequest) (*bedrockruntime.ConverseInput, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("sdk: model is required")
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: make([]types.Message, 0, len(req.Messages)),
	}

	for _, msg := range req.Messages {
		m, err := toSDKMessage(msg)
		if err != nil {
			return nil, err
		}
		in.Messages = append(in.Messages, m)
	}

	if req.System != "" {
		in.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}

	if req.MaxTokens != nil || req.Temperature != nil || req.TopP != nil || len(req.Stop) > 0 {
		ic := &types.InferenceConfiguration{StopSequences: req.Stop}
		if req.MaxTokens != nil {
			ic.MaxTokens = aws.Int32(int32(*req.MaxTokens))
		}
		if req.Temperature != nil {
			ic.Temperature = aws.Float32(float32(*req.Temperature))
		}
		if req.TopP != nil {
			ic.TopP = aws.Float32(float32(*req.TopP))
		}
		in.InferenceConfig = ic
	}

	if len(req.Tools) > 0 {
		tc := &types.ToolConfiguration{Tools: make([]types.Tool, 0, len(req.Tools))}
		for _, t := range req.Tools {
			spec := types.ToolSpecification{
				Name:        aws.String(t.Name),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(t.InputSchema)},
			}
			if t.Description != "" {
				spec.Description = aws.String(t.Description)
			}
			tc.Tools = append(tc.Tools, &types.ToolMemberToolSpec{Value: spec})
		}

		switch req.ToolChoice {
		case "", llm.ToolChoiceAuto:
			tc.ToolChoice = &types.ToolChoiceMemberAuto{}
		case llm.ToolChoiceAny:
			tc.ToolChoice = &types.ToolChoiceMemberAny{}
		default:
			tc.ToolChoice = &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(req.ToolChoice)}}
		}
		in.ToolConfig = tc
	}

	return in, nil
}

func toSDKMessage(msg llm.Message) (types.Message, error) {
	m := types.Message{Role: types.ConversationRole(msg.Role)}
	for _, block := range msg.Content {
		switch block.Type {
		case llm.BlockText:
			m.Content = append(m.Content, &types.ContentBlockMemberText{Value: block.Text})
		case llm.BlockToolUse:
			m.Content = append(m.Content, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
				ToolUseId: aws.String(block.ToolUseID),
				Name:      aws.String(block.ToolName),
				Input:     document.NewLazyDocument(block.ToolInput),
			}})
		default:
			return m, fmt.Errorf("sdk: unsupported content block %q", block.Type)
		}
	}
	return m, nil
}

func fromSDKMessage(msg types.Message) (llm.Message, error) {
	out := llm.Message{Role: string(msg.Role)}
	for _, block := range msg.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			out.Content = append(out.Content, llm.ContentBlock{Type: llm.BlockText, Text: b.Value})
		case *types.ContentBlockMemberToolUse:
			input, err := toolInput(b.Value.Input)
			if err != nil {
				return out, err
			}
			out.Content = append(out.Content, llm.ContentBlock{
				Type:      llm.BlockToolUse,
				ToolUseID: aws.ToString(b.Value.ToolUseId),
				ToolName:  aws.ToString(b.Value.Name),
				ToolInput: input,
			})
		}
	}
	return out, nil
}

// toolInput converts a smithy document to a plain JSON map so numbers come out
// as float64, like every other decoded payload.
func toolInput(doc document.Interface) (map[string]any, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := doc.MarshalSmithyDocument()
	if err != nil {
		return nil, fmt.Errorf("encoding tool input: %w", err)
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("decoding tool input: %w", err)
	}
	return input, nil
}

func usage(u *types.TokenUsage) *llm.Usage {
	if u == nil {
		return nil
	}
	return &llm.Usage{
		InputTokens:  int(aws.ToInt32(u.InputTokens)),
		OutputTokens: int(aws.ToInt32(u.OutputTokens)),
		TotalTokens:  int(aws.ToInt32(u.TotalTokens)),
	}
}
