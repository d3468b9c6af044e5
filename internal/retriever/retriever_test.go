package retriever

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-rag/internal/embedding"
	"knowledge-rag/internal/store"
)

type fakeStore struct {
	store.Store
	rows []store.RetrievedChunk

	searches int
	gotTopK  int
	gotDoc   *uuid.UUID
	gotVec   []float32
}

func (f *fakeStore) SimilaritySearch(ctx context.Context, queryVec []float32, topK int, documentID *uuid.UUID) ([]store.RetrievedChunk, error) {
	f.searches++
	f.gotTopK = topK
	f.gotDoc = documentID
	f.gotVec = queryVec
	if topK < len(f.rows) {
		return f.rows[:topK], nil
	}
	return f.rows, nil
}

func rowsWithDistances(distances ...float64) []store.RetrievedChunk {
	rows := make([]store.RetrievedChunk, len(distances))
	for i, d := range distances {
		rows[i] = store.RetrievedChunk{
			ChunkID:    uuid.New(),
			DocumentID: uuid.New(),
			ChunkIndex: i,
			Text:       "passage",
			Distance:   d,
		}
	}
	return rows
}

func TestRetrieveAppliesDefaultThreshold(t *testing.T) {
	fs := &fakeStore{rows: rowsWithDistances(0.1, 0.5, 0.9, 1.4)}
	r := New(fs, embedding.NewHashProvider(32), 0.95)

	res, err := r.Retrieve(context.Background(), "what is this", 10, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.95, res.ThresholdApplied)
	assert.Len(t, res.Chunks, 3)
	for _, c := range res.Chunks {
		assert.LessOrEqual(t, c.Distance, 0.95)
	}
}

func TestRetrieveThresholdOverride(t *testing.T) {
	fs := &fakeStore{rows: rowsWithDistances(0.1, 0.5, 0.9, 1.4)}
	r := New(fs, embedding.NewHashProvider(32), 0.95)

	override := 0.3
	res, err := r.Retrieve(context.Background(), "q", 10, &override, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.3, res.ThresholdApplied)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, 0.1, res.Chunks[0].Distance)
}

func TestRetrieveCapsBeforeThreshold(t *testing.T) {
	// Five candidates, but the store is only asked for two; chunks beyond
	// the cap never reappear however loose the threshold.
	fs := &fakeStore{rows: rowsWithDistances(0.1, 0.2, 0.3, 0.4, 0.5)}
	r := New(fs, embedding.NewHashProvider(32), 2.0)

	res, err := r.Retrieve(context.Background(), "q", 2, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, fs.gotTopK)
	assert.Len(t, res.Chunks, 2)
}

func TestRetrieveSingleSearchAndEmbeddingReturned(t *testing.T) {
	fs := &fakeStore{rows: rowsWithDistances(0.1)}
	embedder := embedding.NewHashProvider(32)
	r := New(fs, embedder, 0.95)

	res, err := r.Retrieve(context.Background(), "stable query", 5, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fs.searches)

	want, err := embedder.EmbedQuery(context.Background(), "stable query")
	require.NoError(t, err)
	assert.Equal(t, want, res.QueryEmbedding)
	assert.Equal(t, want, fs.gotVec)
}

func TestRetrievePassesDocumentFilter(t *testing.T) {
	fs := &fakeStore{}
	r := New(fs, embedding.NewHashProvider(32), 0.95)

	docID := uuid.New()
	res, err := r.Retrieve(context.Background(), "q", 5, nil, &docID)
	require.NoError(t, err)
	require.NotNil(t, fs.gotDoc)
	assert.Equal(t, docID, *fs.gotDoc)
	require.NotNil(t, res.DocumentID)
	assert.Equal(t, docID, *res.DocumentID)
	assert.Empty(t, res.Chunks)
}
