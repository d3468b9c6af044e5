package llm

import (
	"context"
	"fmt"
	"strings"

	"knowledge-rag/internal/config"
)

// Response is the result of one completion call, including the provider's
// token usage counters.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider maps a (system, user) message pair to generated text.
// Implementations are safe for concurrent use.
type Provider interface {
	Complete(ctx context.Context, system, user string) (*Response, error)
}

// New selects a provider variant from the configuration. Unknown provider
// names and missing credentials fail at construction.
func New(cfg *config.LLMConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		if cfg.Key == "" {
			return nil, fmt.Errorf("llm provider %q requires an API key", cfg.Provider)
		}
		return NewOpenAIProvider(cfg)
	case "local":
		return NewLocalProvider(cfg.LocalURL, cfg.LocalModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Pricing is the per-token cost of a model in USD per million tokens.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

var pricingTable = map[string]Pricing{
	"gpt-4o-mini": {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4o":      {InputPerMTok: 2.50, OutputPerMTok: 10.00},
}

// PricingFor returns the pricing entry for a model, if one is known.
// Self-hosted and unknown models have no cost estimate.
func PricingFor(model string) (Pricing, bool) {
	p, ok := pricingTable[model]
	return p, ok
}

// EstimateCost computes the linear token cost of a response, or nil when
// the model has no pricing entry.
func EstimateCost(model string, promptTokens, completionTokens int) *float64 {
	p, ok := PricingFor(model)
	if !ok {
		return nil
	}
	cost := float64(promptTokens)/1e6*p.InputPerMTok + float64(completionTokens)/1e6*p.OutputPerMTok
	return &cost
}
