package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/smallnest/atlaschat/internal/log"
)

const maxIterationsMessage = "Maximum iterations reached. Please try a simpler query."

// Executor runs a tool-calling loop against one model: the model proposes
// tool calls, the executor runs them and feeds results back until the model
// answers without tool calls or the iteration cap is hit.
type Executor struct {
	Model         llms.Model
	Tools         []tools.Tool
	ToolDefs      []llms.Tool
	MaxIterations int
	Logger        log.Logger

	// CallOptions are applied to every model invocation in addition to
	// the tool definitions (e.g. temperature).
	CallOptions []llms.CallOption
}

// Run executes the loop. Tool starts are reported through emit as they
// happen; the final answer is returned.
func (e *Executor) Run(ctx context.Context, messages []llms.MessageContent, emit EmitFunc) (string, error) {
	logger := e.Logger
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	maxIterations := e.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 20
	}

	msgs := make([]llms.MessageContent, len(messages))
	copy(msgs, messages)

	opts := append([]llms.CallOption{llms.WithTools(e.ToolDefs)}, e.CallOptions...)

	for iteration := 0; iteration < maxIterations; iteration++ {
		resp, err := e.Model.GenerateContent(ctx, msgs, opts...)
		if err != nil {
			return "", fmt.Errorf("model call failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("model returned no choices")
		}
		choice := resp.Choices[0]

		if len(choice.ToolCalls) == 0 {
			return choice.Content, nil
		}

		aiMsg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if choice.Content != "" {
			aiMsg.Parts = append(aiMsg.Parts, llms.TextPart(choice.Content))
		}
		for _, tc := range choice.ToolCalls {
			aiMsg.Parts = append(aiMsg.Parts, tc)
		}
		msgs = append(msgs, aiMsg)

		for _, tc := range choice.ToolCalls {
			name := tc.FunctionCall.Name
			rawArgs := tc.FunctionCall.Arguments

			if emit != nil {
				emit(Event{
					Type: EventToolCall,
					Name: name,
					Args: decodeArgs(rawArgs),
				})
			}
			logger.Info("tool start: %s args=%s", name, rawArgs)

			result, err := e.callTool(ctx, name, rawArgs)
			if err != nil {
				return "", err
			}

			msgs = append(msgs, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       name,
						Content:    result,
					},
				},
			})
		}
	}

	logger.Warn("iteration cap reached after %d rounds", maxIterations)
	return maxIterationsMessage, nil
}

// callTool runs one tool. Unknown tools and tool-level failures are turned
// into result text so the model can recover; hard errors (dead transport,
// canceled context) propagate.
func (e *Executor) callTool(ctx context.Context, name, rawArgs string) (string, error) {
	for _, tool := range e.Tools {
		if tool.Name() != name {
			continue
		}
		result, err := tool.Call(ctx, rawArgs)
		if err != nil {
			return "", err
		}
		return result, nil
	}
	return fmt.Sprintf("Error: unknown tool %q", name), nil
}

// decodeArgs parses tool arguments for event reporting; the raw string is
// kept when it is not valid JSON.
func decodeArgs(raw string) any {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return raw
	}
	return args
}
