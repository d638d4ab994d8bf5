package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Route selects the worker executor handling a request.
type Route string

const (
	// RouteFast handles everyday requests on the cheap model.
	RouteFast Route = "fast"
	// RouteSmart handles requests needing stronger reasoning.
	RouteSmart Route = "smart"
	// RouteComplex handles multi-step work like page authoring.
	RouteComplex Route = "complex"
)

// ParseRoute maps a raw router reply to a Route. "complex" wins over
// "smart"; anything else defaults to fast.
func ParseRoute(reply string) Route {
	reply = strings.ToLower(strings.TrimSpace(reply))
	switch {
	case strings.Contains(reply, "complex"):
		return RouteComplex
	case strings.Contains(reply, "smart"):
		return RouteSmart
	default:
		return RouteFast
	}
}

// Router classifies requests with a small LLM.
type Router struct {
	Model llms.Model
}

// Route classifies a single user request.
func (r *Router) Route(ctx context.Context, input string) (Route, error) {
	resp, err := r.Model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, routerSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("router model failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("router model returned no choices")
	}
	return ParseRoute(resp.Choices[0].Content), nil
}
