package llmprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/openrt/agentcore/pkg/models"
)

// OpenAIConfig configures an OpenAI-compatible (OpenAI, or any
// OpenAI-wire-format-compatible self-hosted endpoint) Provider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// OpenAI adapts the Chat Completions API to the Provider capability.
type OpenAI struct {
	client       *openai.Client
	defaultModel string
	maxTokens    int
}

func NewOpenAI(config OpenAIConfig) (*OpenAI, error) {
	if config.APIKey == "" {
		return nil, errors.New("llmprovider: openai API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = openai.GPT4o
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}
	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	return &OpenAI{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: config.DefaultModel,
		maxTokens:    config.MaxTokens,
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Chat(ctx context.Context, messages []models.ChatMessage, tools []ToolSchema) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:     o.defaultModel,
		MaxTokens: o.maxTokens,
		Messages:  convertOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		req.Tools = convertOpenAITools(tools)
	}

	completion, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llmprovider: openai chat: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("llmprovider: openai returned no choices")
	}
	choice := completion.Choices[0]

	resp := &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return resp, nil
}

func convertOpenAIMessages(messages []models.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case models.RoleTool:
			role = openai.ChatMessageRoleTool
		}
		msg := openai.ChatCompletionMessage{
			Role:       role,
			Content:    m.Text(),
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func convertOpenAITools(tools []ToolSchema) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params any
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &params)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
