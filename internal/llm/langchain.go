package llm

import (
	"context"
	"fmt"
	"time"

	"github-review-automation/internal/types"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// LangChainAdapter implements Client on top of LangChainGo, for deployments
// that prefer its provider abstractions over the official client.
type LangChainAdapter struct {
	llm     *lcopenai.LLM
	timeout time.Duration
}

func NewLangChainAdapter(apiKey, baseURL, model, embeddingModel string, timeout time.Duration) (*LangChainAdapter, error) {
	client, err := lcopenai.New(
		lcopenai.WithToken(apiKey),
		lcopenai.WithBaseURL(baseURL),
		lcopenai.WithModel(model),
		lcopenai.WithEmbeddingModel(embeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("init langchain llm: %w", err)
	}
	return &LangChainAdapter{llm: client, timeout: timeout}, nil
}

func (a *LangChainAdapter) Complete(ctx context.Context, systemPrompt, userInput string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userInput),
	})
	if err != nil {
		return "", types.NewUpstreamError("llm", "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", types.NewUpstreamError("llm", "chat completion", fmt.Errorf("empty choices"))
	}
	return resp.Choices[0].Content, nil
}

func (a *LangChainAdapter) Embed(ctx context.Context, text string) ([]float64, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	vectors, err := a.llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, types.NewUpstreamError("llm", "embedding", err)
	}
	if len(vectors) == 0 {
		return nil, types.NewUpstreamError("llm", "embedding", fmt.Errorf("empty data"))
	}

	out := make([]float64, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float64(v)
	}
	return out, nil
}
