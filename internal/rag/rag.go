package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"knowledge-rag/internal/config"
	"knowledge-rag/internal/embedding"
	"knowledge-rag/internal/helper"
	"knowledge-rag/internal/llm"
	"knowledge-rag/internal/retriever"
	"knowledge-rag/internal/store"
)

// fallbackSystemPrompt is used when no prompt version is active for the
// requested name.
const fallbackSystemPrompt = `You are a knowledgeable assistant. Your job is to answer the user's question using ONLY the context passages provided below. Follow these rules:

1. Base your answer exclusively on the provided context. Do not add outside knowledge.
2. If the context does not contain enough information to answer, say so clearly.
3. Be concise, accurate, and well-structured.
4. Respond in the same language as the user's question.
5. Cite the passages you used by their labels, e.g. [Passage 2], and finish with a "Sources:" line listing them.`

// noResultsAnswer is returned without calling the LLM when retrieval finds
// nothing.
const noResultsAnswer = "No relevant information found in the knowledge base."

const citationDisplayLength = 200

// ErrCompletion wraps failures from the LLM provider so transport layers can
// map them to an upstream error status.
var ErrCompletion = errors.New("llm completion failed")

// Request carries one query call.
type Request struct {
	Query          string
	TopK           int
	ScoreThreshold *float64
	DocumentID     *uuid.UUID
	Debug          bool
	PromptName     string
}

// ChunkOut is one retrieved passage as reported to the caller.
type ChunkOut struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Distance   float64
	Text       string
}

// Citation is a labeled, truncated reference to a retrieved chunk, in the
// same order as the passages given to the model.
type Citation struct {
	Label      string
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Text       string
}

// ChunkDebug carries per-chunk scoring for debug introspection.
type ChunkDebug struct {
	Label      string
	ChunkID    uuid.UUID
	Distance   float64
	Similarity float64
}

// DebugInfo is an optional projection over data the query already
// produced. Building it never triggers additional provider calls.
type DebugInfo struct {
	EmbeddingDim     int
	EmbeddingNorm    float64
	ThresholdApplied float64
	DocumentID       *uuid.UUID
	ChunksRequested  int
	ChunksReturned   int
	Chunks           []ChunkDebug
	PromptUsed       string
}

// Response is the full answer envelope for one query.
type Response struct {
	Query            string
	Answer           string
	ChunksRetrieved  int
	ThresholdApplied float64
	Chunks           []ChunkOut
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	EstimatedCostUSD *float64
	LatencyMs        int64
	DebugInfo        *DebugInfo
	Citations        []Citation
}

// Orchestrator is the top-level query use case: retrieval, prompt
// resolution, completion, telemetry, and response assembly.
type Orchestrator struct {
	store     store.Store
	retriever *retriever.Retriever
	llm       llm.Provider
	llmModel  string
	cfg       *config.RAGConfig
}

// NewOrchestrator builds the use case for one query request. The LLM
// provider is selected here, per construction; re-selection is cheap and
// keeps provider configuration errors at the call boundary.
func NewOrchestrator(st store.Store, embedder embedding.Provider, cfg *config.Config) (*Orchestrator, error) {
	provider, err := llm.New(&cfg.LLM)
	if err != nil {
		return nil, err
	}
	model := cfg.LLM.Model
	if strings.EqualFold(cfg.LLM.Provider, "local") {
		model = cfg.LLM.LocalModel
	}
	return &Orchestrator{
		store:     st,
		retriever: retriever.New(st, embedder, cfg.RAG.ScoreThreshold),
		llm:       provider,
		llmModel:  model,
		cfg:       &cfg.RAG,
	}, nil
}

// Query answers one question against the knowledge base. A telemetry row
// is persisted for every call, including those that retrieve nothing.
func (o *Orchestrator) Query(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	topK := req.TopK
	if topK <= 0 {
		topK = o.cfg.TopK
	}
	promptName := req.PromptName
	if promptName == "" {
		promptName = o.cfg.PromptName
	}

	result, err := o.retriever.Retrieve(ctx, req.Query, topK, req.ScoreThreshold, req.DocumentID)
	if err != nil {
		return nil, err
	}

	systemPrompt, promptUsed, err := o.resolvePrompt(ctx, promptName)
	if err != nil {
		return nil, err
	}

	var (
		answer  string
		llmResp *llm.Response
	)
	if len(result.Chunks) == 0 {
		answer = noResultsAnswer
	} else {
		llmResp, err = o.llm.Complete(ctx, systemPrompt, buildUserMessage(req.Query, result.Chunks))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompletion, err)
		}
		answer = llmResp.Content
	}

	latencyMs := time.Since(start).Milliseconds()

	resp := &Response{
		Query:            result.Query,
		Answer:           answer,
		ChunksRetrieved:  len(result.Chunks),
		ThresholdApplied: result.ThresholdApplied,
		Chunks:           chunksOut(result.Chunks),
		LatencyMs:        latencyMs,
		Citations:        citations(result.Chunks),
	}
	if llmResp != nil {
		resp.PromptTokens = llmResp.PromptTokens
		resp.CompletionTokens = llmResp.CompletionTokens
		resp.TotalTokens = llmResp.TotalTokens
		resp.EstimatedCostUSD = llm.EstimateCost(o.llmModel, llmResp.PromptTokens, llmResp.CompletionTokens)
	}

	if _, err := o.store.LogQuery(ctx, store.QueryLogEntry{
		QueryText:        req.Query,
		ChunksUsed:       len(result.Chunks),
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
		EstimatedCostUSD: resp.EstimatedCostUSD,
		LatencyMs:        latencyMs,
	}); err != nil {
		// Telemetry failure should not void an answer we already have.
		log.Warn().Err(err).Msg("Error persisting query log")
	}

	if req.Debug && result.QueryEmbedding != nil {
		resp.DebugInfo = debugInfo(result, topK, promptUsed)
	}

	log.Info().
		Int("chunks_used", len(result.Chunks)).
		Float64("threshold_applied", result.ThresholdApplied).
		Int("total_tokens", resp.TotalTokens).
		Int64("latency_ms", latencyMs).
		Msg("Query answered")
	return resp, nil
}

// resolvePrompt returns the active prompt content for the name, or the
// built-in fallback, plus a provenance string for debug output.
func (o *Orchestrator) resolvePrompt(ctx context.Context, name string) (content, provenance string, err error) {
	prompt, err := o.store.GetActivePrompt(ctx, name)
	if err != nil {
		return "", "", err
	}
	if prompt == nil {
		return fallbackSystemPrompt, "builtin", nil
	}
	return prompt.Content, fmt.Sprintf("%s v%d", prompt.Name, prompt.Version), nil
}

// buildUserMessage concatenates the retrieved chunks as labeled passages,
// in retrieval order, followed by the original question.
func buildUserMessage(query string, chunks []store.RetrievedChunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[Passage %d]\n%s", i+1, c.Text)
	}
	return fmt.Sprintf("Context passages:\n\n%s\n\nQuestion: %s",
		strings.Join(blocks, "\n\n---\n\n"), query)
}

func chunksOut(chunks []store.RetrievedChunk) []ChunkOut {
	out := make([]ChunkOut, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkOut{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Distance:   c.Distance,
			Text:       c.Text,
		}
	}
	return out
}

func citations(chunks []store.RetrievedChunk) []Citation {
	out := make([]Citation, len(chunks))
	for i, c := range chunks {
		out[i] = Citation{
			Label:      fmt.Sprintf("Passage %d", i+1),
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Text:       helper.TruncateAtWord(c.Text, citationDisplayLength),
		}
	}
	return out
}

func debugInfo(result *retriever.Result, requested int, promptUsed string) *DebugInfo {
	var sumSquares float64
	for _, v := range result.QueryEmbedding {
		sumSquares += float64(v) * float64(v)
	}

	chunks := make([]ChunkDebug, len(result.Chunks))
	for i, c := range result.Chunks {
		chunks[i] = ChunkDebug{
			Label:      fmt.Sprintf("Passage %d", i+1),
			ChunkID:    c.ChunkID,
			Distance:   c.Distance,
			Similarity: 1 - c.Distance,
		}
	}
	return &DebugInfo{
		EmbeddingDim:     len(result.QueryEmbedding),
		EmbeddingNorm:    math.Sqrt(sumSquares),
		ThresholdApplied: result.ThresholdApplied,
		DocumentID:       result.DocumentID,
		ChunksRequested:  requested,
		ChunksReturned:   len(result.Chunks),
		Chunks:           chunks,
		PromptUsed:       promptUsed,
	}
}
