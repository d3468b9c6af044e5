package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"knowledge-rag/internal/chunker"
	"knowledge-rag/internal/config"
	"knowledge-rag/internal/embedding"
	"knowledge-rag/internal/parser"
	"knowledge-rag/internal/store"
)

var (
	// ErrUnsupportedContentType is returned for anything but PDF uploads.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrNoExtractableText is returned when extraction yields only
	// whitespace, e.g. for scanned PDFs without a text layer.
	ErrNoExtractableText = errors.New("no extractable text found in document")
)

const pdfContentType = "application/pdf"

// Result describes one ingestion call. AlreadyExisted reports the
// idempotent outcome: the same bytes were ingested before and nothing was
// written.
type Result struct {
	DocumentID     uuid.UUID
	ChunksIngested int
	AlreadyExisted bool
	OCRUsed        bool
}

// Service runs the ingestion pipeline: hash, extract, chunk, embed, store.
type Service struct {
	store     store.Store
	embedder  embedding.Provider
	extractor parser.Extractor
	cfg       *config.RAGConfig
}

func NewService(st store.Store, embedder embedding.Provider, extractor parser.Extractor, cfg *config.RAGConfig) *Service {
	return &Service{store: st, embedder: embedder, extractor: extractor, cfg: cfg}
}

// Ingest processes one uploaded document. Re-submitting byte-identical
// content returns the original document id with AlreadyExisted set and no
// new rows. Two concurrent uploads of the same bytes can both pass the hash
// lookup; the storage uniqueness constraint then rejects the loser, which
// is converted into the same idempotent outcome.
func (s *Service) Ingest(ctx context.Context, filename, contentType string, data []byte) (*Result, error) {
	if contentType != pdfContentType {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if id, ok, err := s.store.FindByHash(ctx, hash); err != nil {
		return nil, err
	} else if ok {
		log.Info().Stringer("document_id", id).Str("filename", filename).Msg("Document already ingested")
		return &Result{DocumentID: id, AlreadyExisted: true}, nil
	}

	text, ocrUsed, err := s.extractor.Extract(data)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoExtractableText
	}

	segments, err := chunker.Split(text, s.cfg.MaxTokens, s.cfg.OverlapTokens)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, ErrNoExtractableText
	}

	texts := make([]string, len(segments))
	chunks := make([]store.ChunkInput, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
		chunks[i] = store.ChunkInput{Index: seg.Index, Text: seg.Text}
	}

	embeddings, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}

	docID, err := s.store.IngestDocument(ctx, filename, contentType, hash, chunks, embeddings)
	if errors.Is(err, store.ErrDuplicateHash) {
		// A concurrent upload of the same bytes won the insert. Re-query
		// by hash and report the winner's id.
		id, ok, findErr := s.store.FindByHash(ctx, hash)
		if findErr != nil {
			return nil, findErr
		}
		if !ok {
			return nil, err
		}
		log.Info().Stringer("document_id", id).Msg("Concurrent ingest of identical content, reusing existing document")
		return &Result{DocumentID: id, AlreadyExisted: true}, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Stringer("document_id", docID).
		Str("filename", filename).
		Int("chunks", len(chunks)).
		Bool("ocr", ocrUsed).
		Msg("Document ingested")
	return &Result{DocumentID: docID, ChunksIngested: len(chunks), OCRUsed: ocrUsed}, nil
}
