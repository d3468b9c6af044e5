package server

import (
	"time"

	"github.com/google/uuid"

	"knowledge-rag/internal/rag"
	"knowledge-rag/internal/store"
)

type queryRequest struct {
	Query          string   `json:"query" binding:"required,min=1,max=10000"`
	TopK           int      `json:"top_k" binding:"omitempty,min=1,max=50"`
	ScoreThreshold *float64 `json:"score_threshold" binding:"omitempty,gte=0,lte=2"`
	DocumentID     *string  `json:"document_id"`
	Debug          bool     `json:"debug"`
	PromptName     string   `json:"prompt_name"`
}

type promptRequest struct {
	Name    string  `json:"name" binding:"required,min=1,max=100"`
	Content string  `json:"content" binding:"required,min=1"`
	Author  *string `json:"author"`
}

type ingestResponse struct {
	DocumentID     uuid.UUID `json:"document_id"`
	ChunksIngested int       `json:"chunks_ingested"`
	AlreadyExisted bool      `json:"already_existed"`
	OCRUsed        bool      `json:"ocr_used"`
}

type documentResponse struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	ChunkCount  int       `json:"chunk_count"`
}

type documentListResponse struct {
	Documents []documentResponse `json:"documents"`
	Total     int                `json:"total"`
}

type chunkResponse struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Distance   float64   `json:"distance"`
	Text       string    `json:"text"`
}

type citationResponse struct {
	Label      string    `json:"label"`
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
}

type chunkDebugResponse struct {
	Label      string    `json:"label"`
	ChunkID    uuid.UUID `json:"chunk_id"`
	Distance   float64   `json:"distance"`
	Similarity float64   `json:"similarity"`
}

type debugResponse struct {
	EmbeddingDim     int                  `json:"embedding_dim"`
	EmbeddingNorm    float64              `json:"embedding_norm"`
	ThresholdApplied float64              `json:"threshold_applied"`
	DocumentID       *uuid.UUID           `json:"document_id"`
	ChunksRequested  int                  `json:"chunks_requested"`
	ChunksReturned   int                  `json:"chunks_returned"`
	Chunks           []chunkDebugResponse `json:"chunks"`
	PromptUsed       string               `json:"prompt_used"`
}

type queryResponse struct {
	Query            string             `json:"query"`
	Answer           string             `json:"answer"`
	ChunksRetrieved  int                `json:"chunks_retrieved"`
	ThresholdApplied float64            `json:"threshold_applied"`
	Chunks           []chunkResponse    `json:"chunks"`
	PromptTokens     int                `json:"prompt_tokens"`
	CompletionTokens int                `json:"completion_tokens"`
	TotalTokens      int                `json:"total_tokens"`
	EstimatedCostUSD *float64           `json:"estimated_cost_usd"`
	LatencyMs        int64              `json:"latency_ms"`
	DebugInfo        *debugResponse     `json:"debug_info,omitempty"`
	Citations        []citationResponse `json:"citations"`
}

type queryLogResponse struct {
	ID               uuid.UUID `json:"id"`
	QueryText        string    `json:"query_text"`
	ChunksUsed       int       `json:"chunks_used"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	EstimatedCostUSD *float64  `json:"estimated_cost_usd"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

type promptResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	Author    *string   `json:"author"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type metricsResponse struct {
	TotalQueries          int      `json:"total_queries"`
	TotalDocuments        int      `json:"total_documents"`
	TotalChunks           int      `json:"total_chunks"`
	AvgLatencyMs          *float64 `json:"avg_latency_ms"`
	TotalTokens           int      `json:"total_tokens"`
	AvgTokensPerQuery     *float64 `json:"avg_tokens_per_query"`
	TotalEstimatedCostUSD *float64 `json:"total_estimated_cost_usd"`
}

func toPromptResponse(p *store.SystemPrompt) promptResponse {
	return promptResponse{
		ID:        p.ID,
		Name:      p.Name,
		Version:   p.Version,
		Content:   p.Content,
		Author:    p.Author,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
	}
}

func toQueryResponse(r *rag.Response) queryResponse {
	chunks := make([]chunkResponse, len(r.Chunks))
	for i, c := range r.Chunks {
		chunks[i] = chunkResponse{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Distance:   c.Distance,
			Text:       c.Text,
		}
	}
	citations := make([]citationResponse, len(r.Citations))
	for i, c := range r.Citations {
		citations[i] = citationResponse{
			Label:      c.Label,
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
		}
	}

	out := queryResponse{
		Query:            r.Query,
		Answer:           r.Answer,
		ChunksRetrieved:  r.ChunksRetrieved,
		ThresholdApplied: r.ThresholdApplied,
		Chunks:           chunks,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
		EstimatedCostUSD: r.EstimatedCostUSD,
		LatencyMs:        r.LatencyMs,
		Citations:        citations,
	}
	if r.DebugInfo != nil {
		dbgChunks := make([]chunkDebugResponse, len(r.DebugInfo.Chunks))
		for i, c := range r.DebugInfo.Chunks {
			dbgChunks[i] = chunkDebugResponse{
				Label:      c.Label,
				ChunkID:    c.ChunkID,
				Distance:   c.Distance,
				Similarity: c.Similarity,
			}
		}
		out.DebugInfo = &debugResponse{
			EmbeddingDim:     r.DebugInfo.EmbeddingDim,
			EmbeddingNorm:    r.DebugInfo.EmbeddingNorm,
			ThresholdApplied: r.DebugInfo.ThresholdApplied,
			DocumentID:       r.DebugInfo.DocumentID,
			ChunksRequested:  r.DebugInfo.ChunksRequested,
			ChunksReturned:   r.DebugInfo.ChunksReturned,
			Chunks:           dbgChunks,
			PromptUsed:       r.DebugInfo.PromptUsed,
		}
	}
	return out
}
