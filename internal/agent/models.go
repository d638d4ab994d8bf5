package agent

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	openaiadapter "github.com/smallnest/atlaschat/internal/adapter/openai"
	"github.com/smallnest/atlaschat/internal/config"
)

// Models holds the four LLM clients behind the routed agent.
type Models struct {
	Router  llms.Model
	Fast    llms.Model
	Smart   llms.Model
	Complex llms.Model
}

// NewModels constructs the model clients from configuration: Gemini for the
// router and the fast worker, OpenAI for the smart and complex workers.
func NewModels(ctx context.Context, cfg config.Config) (Models, error) {
	router, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.GoogleAPIKey),
		googleai.WithDefaultModel(cfg.RouterModel),
	)
	if err != nil {
		return Models{}, fmt.Errorf("failed to create router model: %w", err)
	}

	fast, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.GoogleAPIKey),
		googleai.WithDefaultModel(cfg.FastModel),
	)
	if err != nil {
		return Models{}, fmt.Errorf("failed to create fast model: %w", err)
	}

	smart := openaiadapter.New(openaiadapter.Config{
		APIKey:  cfg.OpenAIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.SmartModel,
	}.WithTemperature(0))

	// Reasoning models reject the temperature parameter, so it stays unset.
	complexModel := openaiadapter.New(openaiadapter.Config{
		APIKey:  cfg.OpenAIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.ComplexModel,
	})

	return Models{
		Router:  router,
		Fast:    fast,
		Smart:   smart,
		Complex: complexModel,
	}, nil
}
