package ingest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-rag/internal/chromemdb"
	"knowledge-rag/internal/config"
	"knowledge-rag/internal/embedding"
	"knowledge-rag/internal/store"
)

// stubExtractor pretends the raw bytes already are the document text.
type stubExtractor struct {
	ocr bool
}

func (e *stubExtractor) Extract(data []byte) (string, bool, error) {
	return string(data), e.ocr, nil
}

func ragConfig() *config.RAGConfig {
	return &config.RAGConfig{MaxTokens: 400, OverlapTokens: 80, TopK: 5, ScoreThreshold: 0.95}
}

func newService(t *testing.T) (*Service, *chromemdb.Store) {
	t.Helper()
	st, err := chromemdb.NewStore()
	require.NoError(t, err)
	svc := NewService(st, embedding.NewHashProvider(64), &stubExtractor{}, ragConfig())
	return svc, st
}

func TestIngestRejectsNonPDF(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Ingest(context.Background(), "a.txt", "text/plain", []byte("hello"))
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
}

func TestIngestRejectsBlankText(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Ingest(context.Background(), "a.pdf", "application/pdf", []byte("   \n\t "))
	assert.ErrorIs(t, err, ErrNoExtractableText)
}

func TestIngestStoresChunks(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, "a.pdf", "application/pdf", []byte("Hello world. How are you?"))
	require.NoError(t, err)
	assert.False(t, res.AlreadyExisted)
	assert.Equal(t, 1, res.ChunksIngested)
	require.NotEqual(t, uuid.Nil, res.DocumentID)

	docs, err := st.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.pdf", docs[0].Filename)
	assert.Equal(t, 1, docs[0].ChunkCount)
}

func TestIngestIdempotent(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	content := []byte("Some document body. With two sentences.")

	first, err := svc.Ingest(ctx, "a.pdf", "application/pdf", content)
	require.NoError(t, err)
	assert.False(t, first.AlreadyExisted)
	assert.Equal(t, 1, first.ChunksIngested)

	// Byte-identical upload under a different filename is a no-op.
	second, err := svc.Ingest(ctx, "copy.pdf", "application/pdf", content)
	require.NoError(t, err)
	assert.True(t, second.AlreadyExisted)
	assert.Equal(t, 0, second.ChunksIngested)
	assert.Equal(t, first.DocumentID, second.DocumentID)

	docs, err := st.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, docs[0].ChunkCount)
}

// blindStore hides existing hashes from FindByHash until the insert has
// failed once, reproducing the concurrent-upload race where both requests
// pass the lookup before either commits.
type blindStore struct {
	store.Store
	lookups int
}

func (b *blindStore) FindByHash(ctx context.Context, hash string) (uuid.UUID, bool, error) {
	b.lookups++
	if b.lookups == 1 {
		return uuid.Nil, false, nil
	}
	return b.Store.FindByHash(ctx, hash)
}

func TestIngestDuplicateHashRaceCollapsesToIdempotent(t *testing.T) {
	ctx := context.Background()
	inner, err := chromemdb.NewStore()
	require.NoError(t, err)
	content := []byte("Raced content. Both uploads see no existing hash.")

	// The winner is already committed.
	winner, err := NewService(inner, embedding.NewHashProvider(64), &stubExtractor{}, ragConfig()).
		Ingest(ctx, "a.pdf", "application/pdf", content)
	require.NoError(t, err)

	loserSvc := NewService(&blindStore{Store: inner}, embedding.NewHashProvider(64), &stubExtractor{}, ragConfig())
	res, err := loserSvc.Ingest(ctx, "a.pdf", "application/pdf", content)
	require.NoError(t, err)
	assert.True(t, res.AlreadyExisted)
	assert.Equal(t, 0, res.ChunksIngested)
	assert.Equal(t, winner.DocumentID, res.DocumentID)
}

func TestIngestReportsOCRFlag(t *testing.T) {
	st, err := chromemdb.NewStore()
	require.NoError(t, err)
	svc := NewService(st, embedding.NewHashProvider(64), &stubExtractor{ocr: true}, ragConfig())

	res, err := svc.Ingest(context.Background(), "scan.pdf", "application/pdf", []byte("Recovered by OCR."))
	require.NoError(t, err)
	assert.True(t, res.OCRUsed)
}
