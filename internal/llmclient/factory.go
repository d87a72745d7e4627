// File: internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
)

// NewClient builds a single provider client from a model configuration.
func NewClient(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.CompletionClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewRouterFromConfig wires the tiered router from the llm config section.
// The fast and powerful model names must both resolve in cfg.Models.
func NewRouterFromConfig(cfg config.LLMConfig, logger *zap.Logger) (*Router, error) {
	fastCfg, ok := cfg.Models[cfg.FastModel]
	if !ok {
		return nil, fmt.Errorf("llm.models has no entry for fast model %q", cfg.FastModel)
	}
	powerfulCfg, ok := cfg.Models[cfg.PowerfulModel]
	if !ok {
		return nil, fmt.Errorf("llm.models has no entry for powerful model %q", cfg.PowerfulModel)
	}

	fast, err := NewClient(fastCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building fast tier client: %w", err)
	}
	powerful, err := NewClient(powerfulCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building powerful tier client: %w", err)
	}

	return NewRouter(logger, fast, powerful, cfg.RequestsPerSec, cfg.RequestBurst)
}
