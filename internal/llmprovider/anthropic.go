package llmprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/openrt/agentcore/pkg/models"
)

// AnthropicConfig configures an Anthropic-backed Provider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int64
}

// Anthropic adapts the Anthropic Messages API to the Provider capability.
// It performs one request per Chat call; retry is the caller's concern
// (the MessagePipeline owns llm_max_retries / backoff per its own contract).
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int64
}

// NewAnthropic constructs an Anthropic provider from config, applying the
// same defaults as the rest of the corpus's Claude adapters.
func NewAnthropic(config AnthropicConfig) (*Anthropic, error) {
	if config.APIKey == "" {
		return nil, errors.New("llmprovider: anthropic API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	return &Anthropic{
		client:       anthropic.NewClient(opts...),
		defaultModel: config.DefaultModel,
		maxTokens:    config.MaxTokens,
	}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

// Chat issues one non-streaming Messages.New call and normalizes the result.
func (a *Anthropic) Chat(ctx context.Context, messages []models.ChatMessage, tools []ToolSchema) (*Response, error) {
	var system string
	apiMessages, err := convertMessages(messages, &system)
	if err != nil {
		return nil, fmt.Errorf("llmprovider: anthropic message conversion: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.defaultModel),
		MaxTokens: a.maxTokens,
		Messages:  apiMessages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llmprovider: anthropic chat: %w", err)
	}

	resp := &Response{
		FinishReason: string(msg.StopReason),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += variant.Text
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: json.RawMessage(variant.Input),
			})
		}
	}
	return resp, nil
}

// convertMessages maps the pipeline's flat []models.ChatMessage transcript
// (one entry per tool result, as runToolCallLoop appends them) onto the
// Messages API's turn-based shape: system messages are pulled out into
// *system, assistant tool calls become tool_use blocks on an assistant
// turn, and a run of consecutive tool-result messages is merged into a
// single user turn carrying one tool_result block per call — the API
// rejects back-to-back user turns, and a result split across several
// single-block turns would lose that pairing the model needs to match
// tool_use blocks to their tool_result.
func convertMessages(messages []models.ChatMessage, system *string) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for i := 0; i < len(messages); {
		m := messages[i]
		switch m.Role {
		case models.RoleSystem:
			*system = m.Text()
			i++
		case models.RoleTool:
			var content []anthropic.ContentBlockParamUnion
			for i < len(messages) && messages[i].Role == models.RoleTool {
				content = append(content, anthropic.NewToolResultBlock(messages[i].ToolCallID, messages[i].Text(), false))
				i++
			}
			out = append(out, anthropic.NewUserMessage(content...))
		case models.RoleAssistant:
			blocks, err := assistantBlocks(m)
			if err != nil {
				return nil, err
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
			i++
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text())))
			i++
		}
	}
	return out, nil
}

// assistantBlocks renders one assistant turn's text and tool_use blocks.
func assistantBlocks(m models.ChatMessage) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	if text := m.Text(); text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(text))
	}
	for _, tc := range m.ToolCalls {
		var input map[string]any
		if len(tc.Arguments) > 0 {
			if err := json.Unmarshal(tc.Arguments, &input); err != nil {
				return nil, fmt.Errorf("tool call %q arguments: %w", tc.Name, err)
			}
		}
		blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
	}
	return blocks, nil
}

func convertTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &schema)
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}
