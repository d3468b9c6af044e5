// Package chromemdb is the embedded vector store variant, backed by
// chromem-go for similarity search and in-process maps for everything else.
// It exists for offline/dev runs and for the test suite; the postgres store
// in internal/db is the production variant.
package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"knowledge-rag/internal/helper"
	"knowledge-rag/internal/store"
)

const collectionName = "chunks"

type chunkRow struct {
	ID    uuid.UUID
	Index int
	Text  string
}

// Store implements store.Store entirely in memory. Vector similarity is
// delegated to a chromem collection; documents, prompts, and query logs
// live in mutex-guarded maps. Multi-row operations run under one critical
// section, which stands in for the request-scoped transaction of the
// postgres variant.
type Store struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection

	docs    map[uuid.UUID]*store.Document
	hashes  map[string]uuid.UUID
	chunks  map[uuid.UUID][]chunkRow
	prompts map[uuid.UUID]*store.SystemPrompt
	logs    []store.QueryLog
}

func NewStore() (*Store, error) {
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %v", err)
	}
	return &Store{
		db:         db,
		collection: collection,
		docs:       make(map[uuid.UUID]*store.Document),
		hashes:     make(map[string]uuid.UUID),
		chunks:     make(map[uuid.UUID][]chunkRow),
		prompts:    make(map[uuid.UUID]*store.SystemPrompt),
	}, nil
}

func (s *Store) FindByHash(ctx context.Context, hash string) (uuid.UUID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.hashes[hash]
	return id, ok, nil
}

func (s *Store) CreateDocument(ctx context.Context, filename, contentType, hash string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createDocumentLocked(filename, contentType, hash)
}

func (s *Store) createDocumentLocked(filename, contentType, hash string) (uuid.UUID, error) {
	if _, exists := s.hashes[hash]; exists {
		return uuid.Nil, store.ErrDuplicateHash
	}
	id := uuid.New()
	s.docs[id] = &store.Document{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		FileHash:    hash,
		CreatedAt:   time.Now().UTC(),
	}
	s.hashes[hash] = id
	return id, nil
}

func (s *Store) AddChunks(ctx context.Context, documentID uuid.UUID, chunks []store.ChunkInput, embeddings [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addChunksLocked(ctx, documentID, chunks, embeddings)
}

func (s *Store) addChunksLocked(ctx context.Context, documentID uuid.UUID, chunks []store.ChunkInput, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return store.ErrLengthMismatch
	}
	if len(chunks) == 0 {
		return nil
	}

	rows := make([]chunkRow, len(chunks))
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		id := uuid.New()
		rows[i] = chunkRow{ID: id, Index: c.Index, Text: c.Text}
		docs[i] = chromem.Document{
			ID:      id.String(),
			Content: c.Text,
			Metadata: map[string]string{
				"document_id": documentID.String(),
				"chunk_index": strconv.Itoa(c.Index),
			},
			Embedding: embeddings[i],
		}
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}
	s.chunks[documentID] = append(s.chunks[documentID], rows...)
	return nil
}

func (s *Store) IngestDocument(ctx context.Context, filename, contentType, hash string, chunks []store.ChunkInput, embeddings [][]float32) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(chunks) != len(embeddings) {
		return uuid.Nil, store.ErrLengthMismatch
	}
	id, err := s.createDocumentLocked(filename, contentType, hash)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.addChunksLocked(ctx, id, chunks, embeddings); err != nil {
		delete(s.docs, id)
		delete(s.hashes, hash)
		return uuid.Nil, err
	}
	return id, nil
}

func (s *Store) SimilaritySearch(ctx context.Context, queryVec []float32, topK int, documentID *uuid.UUID) ([]store.RetrievedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where map[string]string
	available := s.collection.Count()
	if documentID != nil {
		where = map[string]string{"document_id": documentID.String()}
		available = len(s.chunks[*documentID])
	}
	n := topK
	if n > available {
		n = available
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := s.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryVec,
		NResults:       n,
		Where:          where,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	out := make([]store.RetrievedChunk, 0, len(results))
	for _, r := range results {
		chunkID, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("malformed chunk id %q: %v", r.ID, err)
		}
		docID, err := uuid.Parse(r.Metadata["document_id"])
		if err != nil {
			return nil, fmt.Errorf("malformed document id %q: %v", r.Metadata["document_id"], err)
		}
		index, _ := strconv.Atoi(r.Metadata["chunk_index"])
		out = append(out, store.RetrievedChunk{
			ChunkID:    chunkID,
			DocumentID: docID,
			ChunkIndex: index,
			Text:       r.Content,
			// chromem reports cosine similarity; distance = 1 - similarity.
			Distance: float64(1 - r.Similarity),
		})
	}
	// chromem orders by similarity descending, which is distance ascending.
	return out, nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]store.DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.DocumentInfo, 0, len(s.docs))
	for id, d := range s.docs {
		out = append(out, store.DocumentInfo{
			ID:          id,
			Filename:    d.Filename,
			ContentType: d.ContentType,
			CreatedAt:   d.CreatedAt,
			ChunkCount:  len(s.chunks[id]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return false, nil
	}
	if len(s.chunks[id]) > 0 {
		err := s.collection.Delete(ctx, map[string]string{"document_id": id.String()}, nil)
		if err != nil {
			return false, fmt.Errorf("failed to delete chunks: %v", err)
		}
	}
	delete(s.chunks, id)
	delete(s.hashes, doc.FileHash)
	delete(s.docs, id)
	return true, nil
}

func (s *Store) LogQuery(ctx context.Context, entry store.QueryLogEntry) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := store.QueryLog{
		ID:               uuid.New(),
		QueryText:        entry.QueryText,
		ChunksUsed:       entry.ChunksUsed,
		PromptTokens:     entry.PromptTokens,
		CompletionTokens: entry.CompletionTokens,
		TotalTokens:      entry.TotalTokens,
		EstimatedCostUSD: entry.EstimatedCostUSD,
		LatencyMs:        entry.LatencyMs,
		CreatedAt:        time.Now().UTC(),
	}
	s.logs = append(s.logs, row)
	return row.ID, nil
}

func (s *Store) ListQueryLogs(ctx context.Context, limit int) ([]store.QueryLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.QueryLog, 0, limit)
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.logs[i])
	}
	return out, nil
}

func (s *Store) CreatePrompt(ctx context.Context, name, content string, author *string) (*store.SystemPrompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxVersion := 0
	for _, p := range s.prompts {
		if p.Name == name && p.Version > maxVersion {
			maxVersion = p.Version
		}
	}
	prompt := &store.SystemPrompt{
		ID:        uuid.New(),
		Name:      name,
		Version:   maxVersion + 1,
		Content:   content,
		Author:    author,
		IsActive:  false,
		CreatedAt: time.Now().UTC(),
	}
	s.prompts[prompt.ID] = prompt
	out := *prompt
	return &out, nil
}

func (s *Store) ActivatePrompt(ctx context.Context, id uuid.UUID) (*store.SystemPrompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompt, ok := s.prompts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, p := range s.prompts {
		if p.Name == prompt.Name && p.ID != id {
			p.IsActive = false
		}
	}
	prompt.IsActive = true
	out := *prompt
	return &out, nil
}

func (s *Store) GetActivePrompt(ctx context.Context, name string) (*store.SystemPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.prompts {
		if p.Name == name && p.IsActive {
			out := *p
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) ListPrompts(ctx context.Context, name string) ([]store.SystemPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.SystemPrompt, 0, len(s.prompts))
	for _, p := range s.prompts {
		if name != "" && p.Name != name {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}

func (s *Store) Metrics(ctx context.Context) (*store.Metrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totalChunks := 0
	for _, rows := range s.chunks {
		totalChunks += len(rows)
	}

	m := &store.Metrics{
		TotalQueries:   len(s.logs),
		TotalDocuments: len(s.docs),
		TotalChunks:    totalChunks,
	}

	if len(s.logs) == 0 {
		return m, nil
	}

	var latencySum, costSum float64
	var tokenSum int
	hasCost := false
	for _, l := range s.logs {
		latencySum += float64(l.LatencyMs)
		tokenSum += l.TotalTokens
		if l.EstimatedCostUSD != nil {
			costSum += *l.EstimatedCostUSD
			hasCost = true
		}
	}

	avgLatency := helper.Round(latencySum/float64(len(s.logs)), 2)
	avgTokens := helper.Round(float64(tokenSum)/float64(len(s.logs)), 2)
	m.AvgLatencyMs = &avgLatency
	m.TotalTokens = tokenSum
	m.AvgTokensPerQuery = &avgTokens
	if hasCost {
		totalCost := helper.Round(costSum, 8)
		m.TotalEstimatedCostUSD = &totalCost
	}
	return m, nil
}
