package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/atlaschat/internal/history"
)

// mockModel is a scripted llms.Model: each GenerateContent call pops the
// next response.
type mockModel struct {
	responses []*llms.ContentResponse
	err       error
	calls     [][]llms.MessageContent
}

func (m *mockModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.calls = append(m.calls, messages)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, errors.New("mockModel: no scripted responses left")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *mockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}
}

func toolCallResponse(id, name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				ID:   id,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      name,
					Arguments: args,
				},
			}},
		}},
	}
}

// fakeInvoker records MCP tool calls and returns scripted results.
type fakeInvoker struct {
	docs    string
	results map[string]string
	err     error
	calls   []string
}

func (f *fakeInvoker) CallTool(_ context.Context, name string, _ map[string]any) (string, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return "", f.err
	}
	return f.results[name], nil
}

func (f *fakeInvoker) ToolDocs() string { return f.docs }

func TestParseRoute(t *testing.T) {
	tests := []struct {
		reply string
		want  Route
	}{
		{"fast", RouteFast},
		{"smart", RouteSmart},
		{"complex", RouteComplex},
		{"  Smart.\n", RouteSmart},
		{"this is complex and smart", RouteComplex},
		{"gibberish", RouteFast},
		{"", RouteFast},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseRoute(tt.reply), "reply %q", tt.reply)
	}
}

func TestRouter(t *testing.T) {
	model := &mockModel{responses: []*llms.ContentResponse{textResponse("smart")}}
	router := &Router{Model: model}

	route, err := router.Route(context.Background(), "assign DE-10 to alice")
	require.NoError(t, err)
	assert.Equal(t, RouteSmart, route)

	// Router prompt is the system message, input the human message
	require.Len(t, model.calls, 1)
	require.Len(t, model.calls[0], 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.calls[0][0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.calls[0][1].Role)
}

func TestRouterError(t *testing.T) {
	router := &Router{Model: &mockModel{err: errors.New("quota exceeded")}}
	_, err := router.Route(context.Background(), "hi")
	assert.ErrorContains(t, err, "router model failed")
}

func TestExecutorDirectAnswer(t *testing.T) {
	model := &mockModel{responses: []*llms.ContentResponse{textResponse("All done.")}}
	exec := &Executor{Model: model, ToolDefs: ToolDefs()}

	out, err := exec.Run(context.Background(),
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "hello")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "All done.", out)
}

func TestExecutorToolLoop(t *testing.T) {
	invoker := &fakeInvoker{
		docs:    `{"tools":[]}`,
		results: map[string]string{"transitionJiraIssue": `{"ok":true}`},
	}

	model := &mockModel{responses: []*llms.ContentResponse{
		toolCallResponse("call-1", "mcp_call",
			`{"tool":"transitionJiraIssue","arguments":{"issueKey":"DE-3","status":"Done"}}`),
		textResponse("Ticket DE-3 has been moved to Done."),
	}}

	exec := &Executor{
		Model:    model,
		Tools:    AgentTools(invoker),
		ToolDefs: ToolDefs(),
	}

	var events []Event
	out, err := exec.Run(context.Background(),
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "move DE-3 to DONE")},
		func(e Event) { events = append(events, e) })

	require.NoError(t, err)
	assert.Equal(t, "Ticket DE-3 has been moved to Done.", out)
	assert.Equal(t, []string{"transitionJiraIssue"}, invoker.calls)

	// One tool_call event with parsed args
	require.Len(t, events, 1)
	assert.Equal(t, EventToolCall, events[0].Type)
	assert.Equal(t, "mcp_call", events[0].Name)
	args, ok := events[0].Args.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "transitionJiraIssue", args["tool"])

	// Second model call sees the AI tool-call message plus the tool result
	require.Len(t, model.calls, 2)
	second := model.calls[1]
	assert.Equal(t, llms.ChatMessageTypeAI, second[len(second)-2].Role)
	assert.Equal(t, llms.ChatMessageTypeTool, second[len(second)-1].Role)
}

func TestExecutorToolFailureFedBack(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("issue DE-99 does not exist")}

	model := &mockModel{responses: []*llms.ContentResponse{
		toolCallResponse("call-1", "mcp_call", `{"tool":"getJiraIssue","arguments":{"issueKey":"DE-99"}}`),
		textResponse("I could not find DE-99."),
	}}

	exec := &Executor{Model: model, Tools: AgentTools(invoker), ToolDefs: ToolDefs()}

	out, err := exec.Run(context.Background(),
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "show DE-99")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "I could not find DE-99.", out)

	// The failure went back to the model as a tool message
	second := model.calls[1]
	last := second[len(second)-1]
	resp, ok := last.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Contains(t, resp.Content, "MCP tool invocation failed")
}

func TestExecutorUnknownTool(t *testing.T) {
	model := &mockModel{responses: []*llms.ContentResponse{
		toolCallResponse("call-1", "no_such_tool", `{}`),
		textResponse("done"),
	}}

	exec := &Executor{Model: model, Tools: AgentTools(&fakeInvoker{}), ToolDefs: ToolDefs()}

	out, err := exec.Run(context.Background(),
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "x")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", out)

	second := model.calls[1]
	resp := second[len(second)-1].Parts[0].(llms.ToolCallResponse)
	assert.Contains(t, resp.Content, "unknown tool")
}

func TestExecutorIterationCap(t *testing.T) {
	// Model that always wants another tool call
	loop := toolCallResponse("call-n", "mcp_list_tools", `{}`)
	model := &mockModel{responses: []*llms.ContentResponse{loop, loop, loop, loop}}

	exec := &Executor{
		Model:         model,
		Tools:         AgentTools(&fakeInvoker{docs: "{}"}),
		ToolDefs:      ToolDefs(),
		MaxIterations: 3,
	}

	out, err := exec.Run(context.Background(),
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "x")}, nil)
	require.NoError(t, err)
	assert.Equal(t, maxIterationsMessage, out)
	assert.Len(t, model.calls, 3)
}

func TestAgentRun(t *testing.T) {
	routerModel := &mockModel{responses: []*llms.ContentResponse{textResponse("fast")}}
	fastModel := &mockModel{responses: []*llms.ContentResponse{textResponse("Here you go.")}}

	a := New(Options{
		RouterModel:  routerModel,
		FastModel:    fastModel,
		SmartModel:   &mockModel{},
		ComplexModel: &mockModel{},
		Invoker:      &fakeInvoker{docs: "{}"},
		SystemPrompt: WorkerSystemPrompt("{}", "{}", "{}"),
	})

	hist := []history.Message{
		{Role: history.RoleHuman, Content: "earlier question"},
		{Role: history.RoleAI, Content: "earlier answer"},
	}

	out, err := a.Run(context.Background(), "list my open tickets", hist, nil)
	require.NoError(t, err)
	assert.Equal(t, "Here you go.", out)

	// Worker saw system + 2 history + 1 new human message
	require.Len(t, fastModel.calls, 1)
	msgs := fastModel.calls[0]
	require.Len(t, msgs, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[3].Role)
}

func TestWorkerSystemPrompt(t *testing.T) {
	prompt := WorkerSystemPrompt(`{"tools":[1]}`, `{"cloudId":"abc"}`, `{"name":"bob"}`)
	assert.Contains(t, prompt, `{"tools":[1]}`)
	assert.Contains(t, prompt, `{"cloudId":"abc"}`)
	assert.Contains(t, prompt, `{"name":"bob"}`)
	assert.NotContains(t, prompt, "{tool_docs}")
}
