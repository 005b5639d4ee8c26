package llm

import (
	"context"
	"fmt"
	"time"

	"github-review-automation/internal/types"

	"github.com/openai/openai-go"
)

// OpenAIAdapter implements Client using the official OpenAI client.
// The returned adapter is safe for concurrent use as long as its
// configuration is not modified after creation.
type OpenAIAdapter struct {
	client         *openai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
	sem            chan struct{}
}

// NewOpenAIAdapter wraps client. maxConcurrency bounds in-flight requests;
// zero or negative means a single slot.
func NewOpenAIAdapter(client *openai.Client, model, embeddingModel string, timeout time.Duration, maxConcurrency int) *OpenAIAdapter {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &OpenAIAdapter{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		timeout:        timeout,
		sem:            make(chan struct{}, maxConcurrency),
	}
}

func (a *OpenAIAdapter) acquire(ctx context.Context) (release func(), err error) {
	select {
	case a.sem <- struct{}{}:
		return func() { <-a.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *OpenAIAdapter) Complete(ctx context.Context, systemPrompt, userInput string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	release, err := a.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userInput),
		},
	})
	if err != nil {
		return "", types.NewUpstreamError("llm", "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", types.NewUpstreamError("llm", "chat completion", fmt.Errorf("empty choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *OpenAIAdapter) Embed(ctx context.Context, text string) ([]float64, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	release, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := a.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(a.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, types.NewUpstreamError("llm", "embedding", err)
	}
	if len(resp.Data) == 0 {
		return nil, types.NewUpstreamError("llm", "embedding", fmt.Errorf("empty data"))
	}
	return resp.Data[0].Embedding, nil
}
