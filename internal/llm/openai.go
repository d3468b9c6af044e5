package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"knowledge-rag/internal/config"
)

const (
	maxAttempts = 3
	baseDelay   = time.Second
	maxDelay    = 10 * time.Second
)

// OpenAIProvider is the cloud completion variant. Transient failures are
// retried with bounded exponential backoff; the last error is re-raised.
type OpenAIProvider struct {
	llm         *openai.LLM
	model       string
	temperature float64
	maxTokens   int
}

func NewOpenAIProvider(cfg *config.LLMConfig) (*OpenAIProvider, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llmClient, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing openai client: %w", err)
	}
	return &OpenAIProvider{
		llm:         llmClient,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, system, user string) (*Response, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	var resp *llms.ContentResponse
	err := retryWithBackoff(ctx, func() error {
		var callErr error
		resp, callErr = p.llm.GenerateContent(ctx, messages,
			llms.WithTemperature(p.temperature),
			llms.WithMaxTokens(p.maxTokens),
		)
		return callErr
	}, maxAttempts, baseDelay, maxDelay)
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai completion: empty response")
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:          choice.Content,
		Model:            p.model,
		PromptTokens:     usageCount(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: usageCount(choice.GenerationInfo, "CompletionTokens"),
		TotalTokens:      usageCount(choice.GenerationInfo, "TotalTokens"),
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}

	log.Info().
		Str("model", out.Model).
		Int("prompt_tokens", out.PromptTokens).
		Int("completion_tokens", out.CompletionTokens).
		Msg("LLM response")
	return out, nil
}

// usageCount extracts a token counter from langchaingo's generation info,
// falling back to zero when the provider did not report usage.
func usageCount(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
