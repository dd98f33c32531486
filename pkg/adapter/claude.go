package adapter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/interfaces"
	"github.com/m-mizutani/wandersync/pkg/model"
)

const (
	defaultClaudeModel     = anthropic.ModelClaudeSonnet4_5
	defaultClaudeMaxTokens = 4096
)

// ClaudeClient implements Reasoner with Claude tool use
type ClaudeClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

var _ interfaces.Reasoner = (*ClaudeClient)(nil)

type ClaudeOption func(*claudeConfig)

type claudeConfig struct {
	model     string
	maxTokens int64
	reqOpts   []option.RequestOption
}

// WithClaudeModel sets the model name
func WithClaudeModel(model string) ClaudeOption {
	return func(c *claudeConfig) {
		c.model = model
	}
}

// WithClaudeMaxTokens sets max_tokens of each request
func WithClaudeMaxTokens(n int64) ClaudeOption {
	return func(c *claudeConfig) {
		c.maxTokens = n
	}
}

// WithClaudeBaseURL overrides the API endpoint
func WithClaudeBaseURL(url string) ClaudeOption {
	return func(c *claudeConfig) {
		c.reqOpts = append(c.reqOpts, option.WithBaseURL(url), option.WithMaxRetries(0))
	}
}

// NewClaude creates a new Claude API client
func NewClaude(apiKey string, opts ...ClaudeOption) *ClaudeClient {
	cfg := &claudeConfig{
		model:     string(defaultClaudeModel),
		maxTokens: defaultClaudeMaxTokens,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, cfg.reqOpts...)
	return &ClaudeClient{
		client:    anthropic.NewClient(reqOpts...),
		model:     anthropic.Model(cfg.model),
		maxTokens: cfg.maxTokens,
	}
}

// Reason runs one tool-use step over the conversation
func (c *ClaudeClient) Reason(ctx context.Context, input *interfaces.ReasonInput) (*model.Message, error) {
	messages, err := buildClaudeMessages(input.Conversation)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, goerr.New("conversation has no content")
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  messages,
	}
	if prompt := input.Conversation.SystemPrompt(); prompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt}}
	}

	if len(input.Capabilities) > 0 {
		tools, err := buildClaudeTools(input.Capabilities)
		if err != nil {
			return nil, err
		}
		params.Tools = tools

		if input.ForceAnswer {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfNone: &anthropic.ToolChoiceNoneParam{},
			}
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call claude", goerr.V("model", c.model))
	}

	var text strings.Builder
	var requests []*model.CapabilityRequest
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)

		case "tool_use":
			var args map[string]any
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return nil, goerr.Wrap(err, "failed to decode tool input", goerr.V("tool", block.Name))
				}
			}
			requests = append(requests, &model.CapabilityRequest{
				ID:   model.CorrelationID(block.ID),
				Name: block.Name,
				Args: args,
			})
		}
	}

	return model.NewAssistantMessage(text.String(), requests...), nil
}

func buildClaudeTools(specs []*model.CapabilitySpec) ([]anthropic.ToolUnionParam, error) {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		props, err := schemaProperties(spec.Parameters)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert capability parameters", goerr.V("capability", spec.Name))
		}

		schema := anthropic.ToolInputSchemaParam{Properties: props}
		if spec.Parameters != nil {
			schema.Required = spec.Parameters.Required
		}

		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: schema,
			},
		})
	}
	return tools, nil
}

// buildClaudeMessages maps the conversation to Claude messages. Consecutive
// capability results are sent as one user message of tool_result blocks.
func buildClaudeMessages(conv *model.Conversation) ([]anthropic.MessageParam, error) {
	var messages []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(results) > 0 {
			messages = append(messages, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range conv.Messages() {
		if msg.Role != model.RoleCapabilityResult {
			flush()
		}

		switch msg.Role {
		case model.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))

		case model.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Text))
			}
			for _, req := range msg.Requests {
				args := req.Args
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(string(req.ID), args, req.Name))
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}

		case model.RoleCapabilityResult:
			if msg.Result == nil {
				continue
			}
			if msg.Result.Failed() {
				results = append(results, anthropic.NewToolResultBlock(string(msg.Result.ID), msg.Result.Error, true))
				continue
			}
			raw, err := json.Marshal(msg.Result.Payload)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to marshal capability result", goerr.V("capability", msg.Result.Name))
			}
			results = append(results, anthropic.NewToolResultBlock(string(msg.Result.ID), string(raw), false))
		}
	}
	flush()

	return messages, nil
}
