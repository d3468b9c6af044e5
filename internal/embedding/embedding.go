package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"knowledge-rag/internal/config"
)

// Provider maps text to fixed-dimension vectors. Implementations are safe
// for concurrent use.
type Provider interface {
	// EmbedTexts embeds a batch of texts, returning vectors in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dim is the dimension of every vector this provider produces.
	Dim() int
}

// New selects a provider variant from the configuration. Unknown provider
// names and missing credentials are construction errors; there is no silent
// fallback.
func New(cfg *config.EmbeddingConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "hash", "dev":
		dim := cfg.Dim
		if dim <= 0 {
			dim = defaultHashDim
		}
		return NewHashProvider(dim), nil
	case "openai":
		if cfg.Key == "" {
			return nil, fmt.Errorf("embedding provider %q requires an API key", cfg.Provider)
		}
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

const defaultHashDim = 128

// HashProvider derives vectors from repeated SHA-256 hashing of the input.
// Fully deterministic and offline; meant for dev environments and tests.
type HashProvider struct {
	dim int
}

func NewHashProvider(dim int) *HashProvider {
	return &HashProvider{dim: dim}
}

func (p *HashProvider) Dim() int { return p.dim }

func (p *HashProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = p.embed(t)
	}
	return vectors, nil
}

func (p *HashProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(text), nil
}

func (p *HashProvider) embed(text string) []float32 {
	// Chain digests until we have one byte per dimension, then map each
	// byte into [-1, 1).
	buf := make([]byte, 0, p.dim)
	digest := sha256.Sum256([]byte(text))
	for len(buf) < p.dim {
		buf = append(buf, digest[:]...)
		digest = sha256.Sum256(digest[:])
	}
	vec := make([]float32, p.dim)
	for i := 0; i < p.dim; i++ {
		vec[i] = (float32(buf[i]) - 128) / 128
	}
	return vec
}

// modelDims maps OpenAI embedding model names to their vector dimensions.
var modelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

const defaultOpenAIDim = 1536

// OpenAIProvider wraps the langchaingo OpenAI embeddings client. Newlines
// are stripped from inputs per the provider's convention.
type OpenAIProvider struct {
	embedder *embeddings.EmbedderImpl
	model    string
	dim      int
}

func NewOpenAIProvider(cfg *config.EmbeddingConfig) (*OpenAIProvider, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing openai embeddings client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	dim, ok := modelDims[cfg.Model]
	if !ok {
		dim = defaultOpenAIDim
		log.Warn().Str("model", cfg.Model).Int("dim", dim).Msg("Unknown embedding model, assuming default dimension")
	}
	return &OpenAIProvider{embedder: embedder, model: cfg.Model, dim: dim}, nil
}

func (p *OpenAIProvider) Dim() int { return p.dim }

func (p *OpenAIProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedder.EmbedDocuments(ctx, texts)
}

func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embedder.EmbedQuery(ctx, text)
}
