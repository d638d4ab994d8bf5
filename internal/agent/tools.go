package agent

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/smallnest/atlaschat/internal/mcp"
)

// ToolInvoker is the slice of the MCP connection the agent tools need.
type ToolInvoker interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	ToolDocs() string
}

// ListToolsTool exposes the MCP tool inventory to the model.
type ListToolsTool struct {
	Invoker ToolInvoker
}

var _ tools.Tool = (*ListToolsTool)(nil)

// Name implements tools.Tool.
func (t *ListToolsTool) Name() string { return "mcp_list_tools" }

// Description implements tools.Tool.
func (t *ListToolsTool) Description() string {
	return "List available MCP tool names and their JSON schemas."
}

// Call implements tools.Tool.
func (t *ListToolsTool) Call(_ context.Context, _ string) (string, error) {
	return t.Invoker.ToolDocs(), nil
}

// CallTool lets the model invoke an MCP tool by name.
type CallTool struct {
	Invoker ToolInvoker
}

var _ tools.Tool = (*CallTool)(nil)

// Name implements tools.Tool.
func (t *CallTool) Name() string { return "mcp_call" }

// Description implements tools.Tool.
func (t *CallTool) Description() string {
	return "Call an MCP tool by name with the specified arguments. " +
		"Provide the tool name and a dictionary of arguments."
}

// Call implements tools.Tool. Invocation failures are reported back to the
// model as text so it can correct itself; dead-transport errors propagate
// so the connection gets rebuilt.
func (t *CallTool) Call(ctx context.Context, input string) (string, error) {
	in, err := ParseCallInput(input)
	if err != nil {
		return fmt.Sprintf("MCP tool invocation failed: %v", err), nil
	}

	out, err := t.Invoker.CallTool(ctx, in.Tool, in.Arguments)
	if err != nil {
		if mcp.IsConnectionError(err) {
			return "", err
		}
		return fmt.Sprintf("MCP tool invocation failed: %v", err), nil
	}
	return out, nil
}

// AgentTools returns the tool set given to the worker executors.
func AgentTools(invoker ToolInvoker) []tools.Tool {
	return []tools.Tool{
		&ListToolsTool{Invoker: invoker},
		&CallTool{Invoker: invoker},
	}
}

// ToolDefs returns the function definitions advertised to the model. The
// mcp_call schema mirrors CallInput.
func ToolDefs() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "mcp_list_tools",
				Description: "List available MCP tool names and their JSON schemas.",
				Parameters: map[string]any{
					"type":                 "object",
					"properties":           map[string]any{},
					"additionalProperties": false,
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name: "mcp_call",
				Description: "Call an MCP tool by name with the specified arguments. " +
					"Provide the tool name and a dictionary of arguments.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"tool": map[string]any{
							"type":        "string",
							"description": "The name of the MCP tool to call.",
						},
						"arguments": map[string]any{
							"type":        "object",
							"description": "The arguments to pass to the tool.",
						},
					},
					"required":             []string{"tool"},
					"additionalProperties": false,
				},
			},
		},
	}
}
