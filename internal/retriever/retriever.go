package retriever

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"knowledge-rag/internal/embedding"
	"knowledge-rag/internal/store"
)

// Result is one retrieval pass. QueryEmbedding is the vector the query was
// embedded to; it is kept so debug introspection never needs a second
// embedding call.
type Result struct {
	Query            string
	Chunks           []store.RetrievedChunk
	ThresholdApplied float64
	QueryEmbedding   []float32
	DocumentID       *uuid.UUID
}

// Retriever composes the embedding provider and the vector store to turn a
// query string into a ranked, thresholded set of passages.
type Retriever struct {
	store            store.Store
	embedder         embedding.Provider
	defaultThreshold float64
}

func New(st store.Store, embedder embedding.Provider, defaultThreshold float64) *Retriever {
	return &Retriever{store: st, embedder: embedder, defaultThreshold: defaultThreshold}
}

// Retrieve embeds the query once, runs exactly one similarity search capped
// at topK, and drops chunks whose cosine distance exceeds the effective
// threshold (the per-call override when given, the process default
// otherwise). The cap is applied before the threshold: a stricter threshold
// shrinks the result set but never pulls in matches beyond the original K.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, scoreThreshold *float64, documentID *uuid.UUID) (*Result, error) {
	threshold := r.defaultThreshold
	if scoreThreshold != nil {
		threshold = *scoreThreshold
	}

	queryEmbedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := r.store.SimilaritySearch(ctx, queryEmbedding, topK, documentID)
	if err != nil {
		return nil, err
	}

	chunks := make([]store.RetrievedChunk, 0, len(rows))
	for _, row := range rows {
		if row.Distance > threshold {
			continue
		}
		chunks = append(chunks, row)
	}

	log.Debug().
		Int("requested", topK).
		Int("candidates", len(rows)).
		Int("returned", len(chunks)).
		Float64("threshold", threshold).
		Msg("Retrieval complete")

	return &Result{
		Query:            query,
		Chunks:           chunks,
		ThresholdApplied: threshold,
		QueryEmbedding:   queryEmbedding,
		DocumentID:       documentID,
	}, nil
}
