package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"knowledge-rag/internal/helper"
	"knowledge-rag/internal/store"
)

// Store is the Postgres implementation of store.Store. Similarity is
// computed inside Postgres by pgvector's cosine operator; this layer only
// defines the policy around it (ordering, capping, filtering is left to the
// retriever).
type Store struct {
	db *bun.DB
}

var _ store.Store = (*Store)(nil)

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// isUniqueViolation reports whether err is the Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

func (s *Store) FindByHash(ctx context.Context, hash string) (uuid.UUID, bool, error) {
	var doc documentModel
	err := s.db.NewSelect().
		Model(&doc).
		Column("id").
		Where("file_hash = ?", hash).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("finding document by hash: %w", err)
	}
	return doc.ID, true, nil
}

func (s *Store) CreateDocument(ctx context.Context, filename, contentType, hash string) (uuid.UUID, error) {
	return createDocument(ctx, s.db, filename, contentType, hash)
}

func createDocument(ctx context.Context, idb bun.IDB, filename, contentType, hash string) (uuid.UUID, error) {
	doc := &documentModel{
		ID:          uuid.New(),
		Filename:    filename,
		ContentType: contentType,
		FileHash:    hash,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := idb.NewInsert().Model(doc).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, store.ErrDuplicateHash
		}
		return uuid.Nil, fmt.Errorf("creating document: %w", err)
	}
	return doc.ID, nil
}

func (s *Store) AddChunks(ctx context.Context, documentID uuid.UUID, chunks []store.ChunkInput, embeddings [][]float32) error {
	return addChunks(ctx, s.db, documentID, chunks, embeddings)
}

func addChunks(ctx context.Context, idb bun.IDB, documentID uuid.UUID, chunks []store.ChunkInput, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return store.ErrLengthMismatch
	}
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]chunkModel, len(chunks))
	now := time.Now().UTC()
	for i, c := range chunks {
		rows[i] = chunkModel{
			ID:         uuid.New(),
			DocumentID: documentID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Embedding:  pgVector(embeddings[i]),
			CreatedAt:  now,
		}
	}
	if _, err := idb.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("adding chunks: %w", err)
	}
	return nil
}

func (s *Store) IngestDocument(ctx context.Context, filename, contentType, hash string, chunks []store.ChunkInput, embeddings [][]float32) (uuid.UUID, error) {
	if len(chunks) != len(embeddings) {
		return uuid.Nil, store.ErrLengthMismatch
	}
	var docID uuid.UUID
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		id, err := createDocument(ctx, tx, filename, contentType, hash)
		if err != nil {
			return err
		}
		if err := addChunks(ctx, tx, id, chunks, embeddings); err != nil {
			return err
		}
		docID = id
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return docID, nil
}

func (s *Store) SimilaritySearch(ctx context.Context, queryVec []float32, topK int, documentID *uuid.UUID) ([]store.RetrievedChunk, error) {
	var rows []struct {
		ID         uuid.UUID `bun:"id"`
		DocumentID uuid.UUID `bun:"document_id"`
		ChunkIndex int       `bun:"chunk_index"`
		Text       string    `bun:"text"`
		Distance   float64   `bun:"distance"`
	}

	vec := pgVector(queryVec)
	q := s.db.NewSelect().
		Model((*chunkModel)(nil)).
		Column("c.id", "c.document_id", "c.chunk_index", "c.text").
		ColumnExpr("c.embedding <=> ? AS distance", vec).
		OrderExpr("c.embedding <=> ?", vec).
		Limit(topK)
	if documentID != nil {
		q = q.Where("c.document_id = ?", *documentID)
	}
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	out := make([]store.RetrievedChunk, len(rows))
	for i, r := range rows {
		out[i] = store.RetrievedChunk{
			ChunkID:    r.ID,
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Text:       r.Text,
			Distance:   r.Distance,
		}
	}
	return out, nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]store.DocumentInfo, error) {
	var rows []struct {
		ID          uuid.UUID `bun:"id"`
		Filename    string    `bun:"filename"`
		ContentType string    `bun:"content_type"`
		CreatedAt   time.Time `bun:"created_at"`
		ChunkCount  int       `bun:"chunk_count"`
	}
	err := s.db.NewSelect().
		Model((*documentModel)(nil)).
		Column("d.id", "d.filename", "d.content_type", "d.created_at").
		ColumnExpr("count(c.id) AS chunk_count").
		Join("LEFT JOIN chunks AS c ON c.document_id = d.id").
		Group("d.id", "d.filename", "d.content_type", "d.created_at").
		OrderExpr("d.created_at DESC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	out := make([]store.DocumentInfo, len(rows))
	for i, r := range rows {
		out[i] = store.DocumentInfo{
			ID:          r.ID,
			Filename:    r.Filename,
			ContentType: r.ContentType,
			CreatedAt:   r.CreatedAt,
			ChunkCount:  r.ChunkCount,
		}
	}
	return out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	// Chunk removal cascades via the foreign key.
	res, err := s.db.NewDelete().
		Model((*documentModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("deleting document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) LogQuery(ctx context.Context, entry store.QueryLogEntry) (uuid.UUID, error) {
	row := &queryLogModel{
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
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("logging query: %w", err)
	}
	return row.ID, nil
}

func (s *Store) ListQueryLogs(ctx context.Context, limit int) ([]store.QueryLog, error) {
	var rows []queryLogModel
	err := s.db.NewSelect().
		Model(&rows).
		OrderExpr("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing query logs: %w", err)
	}

	out := make([]store.QueryLog, len(rows))
	for i, r := range rows {
		out[i] = store.QueryLog{
			ID:               r.ID,
			QueryText:        r.QueryText,
			ChunksUsed:       r.ChunksUsed,
			PromptTokens:     r.PromptTokens,
			CompletionTokens: r.CompletionTokens,
			TotalTokens:      r.TotalTokens,
			EstimatedCostUSD: r.EstimatedCostUSD,
			LatencyMs:        r.LatencyMs,
			CreatedAt:        r.CreatedAt,
		}
	}
	return out, nil
}

func (s *Store) CreatePrompt(ctx context.Context, name, content string, author *string) (*store.SystemPrompt, error) {
	var created *systemPromptModel
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var maxVersion sql.NullInt64
		err := tx.NewSelect().
			Model((*systemPromptModel)(nil)).
			ColumnExpr("max(version)").
			Where("name = ?", name).
			Scan(ctx, &maxVersion)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("resolving prompt version: %w", err)
		}

		created = &systemPromptModel{
			ID:        uuid.New(),
			Name:      name,
			Version:   int(maxVersion.Int64) + 1,
			Content:   content,
			Author:    author,
			IsActive:  false,
			CreatedAt: time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(created).Exec(ctx); err != nil {
			return fmt.Errorf("creating prompt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promptFromModel(created), nil
}

func (s *Store) ActivatePrompt(ctx context.Context, id uuid.UUID) (*store.SystemPrompt, error) {
	var prompt systemPromptModel
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().Model(&prompt).Where("p.id = ?", id).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("loading prompt: %w", err)
		}

		_, err = tx.NewUpdate().
			Model((*systemPromptModel)(nil)).
			Set("is_active = false").
			Where("name = ?", prompt.Name).
			Where("id != ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("deactivating sibling prompts: %w", err)
		}

		_, err = tx.NewUpdate().
			Model((*systemPromptModel)(nil)).
			Set("is_active = true").
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("activating prompt: %w", err)
		}
		prompt.IsActive = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promptFromModel(&prompt), nil
}

func (s *Store) GetActivePrompt(ctx context.Context, name string) (*store.SystemPrompt, error) {
	var prompt systemPromptModel
	err := s.db.NewSelect().
		Model(&prompt).
		Where("name = ?", name).
		Where("is_active").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading active prompt: %w", err)
	}
	return promptFromModel(&prompt), nil
}

func (s *Store) ListPrompts(ctx context.Context, name string) ([]store.SystemPrompt, error) {
	var rows []systemPromptModel
	q := s.db.NewSelect().
		Model(&rows).
		OrderExpr("name ASC, version DESC")
	if name != "" {
		q = q.Where("name = ?", name)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("listing prompts: %w", err)
	}

	out := make([]store.SystemPrompt, len(rows))
	for i := range rows {
		out[i] = *promptFromModel(&rows[i])
	}
	return out, nil
}

func (s *Store) Metrics(ctx context.Context) (*store.Metrics, error) {
	var agg struct {
		TotalQueries int      `bun:"total_queries"`
		AvgLatencyMs *float64 `bun:"avg_latency_ms"`
		TotalTokens  *int     `bun:"total_tokens"`
		AvgTokens    *float64 `bun:"avg_tokens"`
		TotalCost    *float64 `bun:"total_cost"`
	}
	err := s.db.NewSelect().
		Model((*queryLogModel)(nil)).
		ColumnExpr("count(q.id) AS total_queries").
		ColumnExpr("avg(q.latency_ms) AS avg_latency_ms").
		ColumnExpr("sum(q.total_tokens) AS total_tokens").
		ColumnExpr("avg(q.total_tokens) AS avg_tokens").
		ColumnExpr("sum(q.estimated_cost_usd) AS total_cost").
		Scan(ctx, &agg)
	if err != nil {
		return nil, fmt.Errorf("aggregating query logs: %w", err)
	}

	docCount, err := s.db.NewSelect().Model((*documentModel)(nil)).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	chunkCount, err := s.db.NewSelect().Model((*chunkModel)(nil)).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}

	m := &store.Metrics{
		TotalQueries:   agg.TotalQueries,
		TotalDocuments: docCount,
		TotalChunks:    chunkCount,
	}
	if agg.TotalTokens != nil {
		m.TotalTokens = *agg.TotalTokens
	}
	if agg.AvgLatencyMs != nil {
		v := helper.Round(*agg.AvgLatencyMs, 2)
		m.AvgLatencyMs = &v
	}
	if agg.AvgTokens != nil {
		v := helper.Round(*agg.AvgTokens, 2)
		m.AvgTokensPerQuery = &v
	}
	if agg.TotalCost != nil {
		v := helper.Round(*agg.TotalCost, 8)
		m.TotalEstimatedCostUSD = &v
	}
	return m, nil
}

func promptFromModel(m *systemPromptModel) *store.SystemPrompt {
	return &store.SystemPrompt{
		ID:        m.ID,
		Name:      m.Name,
		Version:   m.Version,
		Content:   m.Content,
		Author:    m.Author,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
	}
}
