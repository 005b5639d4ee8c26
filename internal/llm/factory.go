package llm

import (
	"fmt"

	"github-review-automation/internal/config"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// NewClient creates an LLM client based on the configured backend.
func NewClient(cfg *config.Config) (Client, error) {
	switch cfg.LLM.Backend {
	case "openai", "":
		client := openai.NewClient(
			option.WithAPIKey(cfg.LLM.APIKey),
			option.WithBaseURL(cfg.LLM.Endpoint),
		)
		return NewOpenAIAdapter(&client, cfg.LLM.Model, cfg.LLM.EmbeddingModel,
			cfg.LLM.Timeout, int(cfg.Server.ConcurrencyLimit)), nil
	case "langchain":
		return NewLangChainAdapter(cfg.LLM.APIKey, cfg.LLM.Endpoint,
			cfg.LLM.Model, cfg.LLM.EmbeddingModel, cfg.LLM.Timeout)
	default:
		return nil, fmt.Errorf("unknown llm backend: %s", cfg.LLM.Backend)
	}
}
