// Package openai adapts the official OpenAI client to the llms.Model
// interface used by the agent, including tool-call round trips. Going
// through go-openai directly keeps access to request knobs the langchaingo
// wrapper does not expose for the newest models.
package openai

import (
	"context"
	"fmt"
	"math"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
)

// Config holds the adapter configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// Temperature is applied when non-nil. Reasoning models reject the
	// parameter, so the default is to omit it.
	Temperature *float32
}

// Adapter implements llms.Model on top of go-openai.
type Adapter struct {
	client *goopenai.Client
	cfg    Config
}

var _ llms.Model = (*Adapter)(nil)

// New creates a new adapter.
func New(cfg Config) *Adapter {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Adapter{
		client: goopenai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

// WithTemperature returns a copy of cfg with the temperature set.
func (c Config) WithTemperature(t float32) Config {
	c.Temperature = &t
	return c
}

// GenerateContent implements llms.Model.
func (a *Adapter) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	resp, err := a.client.CreateChatCompletion(ctx, a.buildRequest(messages, options))
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	choices := make([]*llms.ContentChoice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		choice := &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
		}
		for _, tc := range c.Message.ToolCalls {
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		choices = append(choices, choice)
	}

	return &llms.ContentResponse{Choices: choices}, nil
}

// buildRequest assembles the chat completion request from the configured
// model settings and the per-call options.
func (a *Adapter) buildRequest(messages []llms.MessageContent, options []llms.CallOption) goopenai.ChatCompletionRequest {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	req := goopenai.ChatCompletionRequest{
		Model:    a.cfg.Model,
		Messages: convertMessages(messages),
		Tools:    convertTools(opts.Tools),
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if a.cfg.Temperature != nil {
		req.Temperature = *a.cfg.Temperature
		if req.Temperature == 0 {
			// The request field is omitempty, so an exact 0 would vanish
			// from the request body and the API would fall back to its
			// default of 1. go-openai documents this stand-in for 0.
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = opts.MaxTokens
	}
	return req
}

// Call implements the single-prompt convenience entry point.
func (a *Adapter) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := a.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

// convertMessages maps llms message content to OpenAI chat messages. AI
// messages carry tool calls; tool result parts become individual tool-role
// messages keyed by the originating call ID.
func convertMessages(messages []llms.MessageContent) []goopenai.ChatCompletionMessage {
	var out []goopenai.ChatCompletionMessage

	for _, m := range messages {
		switch m.Role {
		case llms.ChatMessageTypeTool:
			for _, part := range m.Parts {
				if resp, ok := part.(llms.ToolCallResponse); ok {
					out = append(out, goopenai.ChatCompletionMessage{
						Role:       goopenai.ChatMessageRoleTool,
						Content:    resp.Content,
						Name:       resp.Name,
						ToolCallID: resp.ToolCallID,
					})
				}
			}

		default:
			msg := goopenai.ChatCompletionMessage{Role: convertRole(m.Role)}
			for _, part := range m.Parts {
				switch p := part.(type) {
				case llms.TextContent:
					msg.Content += p.Text
				case llms.ToolCall:
					msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
						ID:   p.ID,
						Type: goopenai.ToolTypeFunction,
						Function: goopenai.FunctionCall{
							Name:      p.FunctionCall.Name,
							Arguments: p.FunctionCall.Arguments,
						},
					})
				}
			}
			out = append(out, msg)
		}
	}

	return out
}

func convertRole(role llms.ChatMessageType) string {
	switch role {
	case llms.ChatMessageTypeSystem:
		return goopenai.ChatMessageRoleSystem
	case llms.ChatMessageTypeAI:
		return goopenai.ChatMessageRoleAssistant
	case llms.ChatMessageTypeHuman, llms.ChatMessageTypeGeneric:
		return goopenai.ChatMessageRoleUser
	default:
		return goopenai.ChatMessageRoleUser
	}
}

func convertTools(tools []llms.Tool) []goopenai.Tool {
	if len(tools) == 0 {
		return nil
	}

	out := make([]goopenai.Tool, 0, len(tools))
	for _, t := range tools {
		if t.Function == nil {
			continue
		}
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}
