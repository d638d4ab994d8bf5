// Package agent implements the routed tool-calling agent: a router model
// classifies each request and one of three worker executors runs it against
// the MCP tool set.
package agent

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/atlaschat/internal/history"
	"github.com/smallnest/atlaschat/internal/log"
)

// Agent ties the router and the worker executors together.
type Agent struct {
	Router       *Router
	Workers      map[Route]*Executor
	SystemPrompt string
	Logger       log.Logger
}

// Options configures New.
type Options struct {
	RouterModel   llms.Model
	FastModel     llms.Model
	SmartModel    llms.Model
	ComplexModel  llms.Model
	Invoker       ToolInvoker
	SystemPrompt  string
	MaxIterations int
	Logger        log.Logger
}

// New builds the routed agent over a live MCP connection.
func New(opts Options) *Agent {
	agentTools := AgentTools(opts.Invoker)
	defs := ToolDefs()

	worker := func(model llms.Model, callOpts ...llms.CallOption) *Executor {
		return &Executor{
			Model:         model,
			Tools:         agentTools,
			ToolDefs:      defs,
			MaxIterations: opts.MaxIterations,
			Logger:        opts.Logger,
			CallOptions:   callOpts,
		}
	}

	return &Agent{
		Router: &Router{Model: opts.RouterModel},
		Workers: map[Route]*Executor{
			RouteFast:    worker(opts.FastModel, llms.WithTemperature(0)),
			RouteSmart:   worker(opts.SmartModel),
			RouteComplex: worker(opts.ComplexModel),
		},
		SystemPrompt: opts.SystemPrompt,
		Logger:       opts.Logger,
	}
}

// Run routes a request and executes it with the selected worker's
// tool-calling loop. The conversation history precedes the new input.
func (a *Agent) Run(ctx context.Context, input string, hist []history.Message, emit EmitFunc) (string, error) {
	logger := a.Logger
	if logger == nil {
		logger = &log.NoOpLogger{}
	}

	route, err := a.Router.Route(ctx, input)
	if err != nil {
		return "", err
	}
	logger.Info("routed request to %s worker", route)

	exec, ok := a.Workers[route]
	if !ok {
		return "", fmt.Errorf("no worker for route %q", route)
	}

	return exec.Run(ctx, a.buildMessages(input, hist), emit)
}

func (a *Agent) buildMessages(input string, hist []history.Message) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(hist)+2)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, a.SystemPrompt))

	for _, m := range hist {
		switch m.Role {
		case history.RoleHuman:
			msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case history.RoleAI:
			msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeAI, m.Content))
		}
	}

	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, input))
}
