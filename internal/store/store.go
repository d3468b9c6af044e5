package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the requested document or prompt does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateHash indicates a document with the same content hash was
	// already ingested. Callers treat this as the idempotent
	// "already exists" outcome.
	ErrDuplicateHash = errors.New("document with this content hash already exists")

	// ErrLengthMismatch indicates the chunk and embedding slices differ in
	// length.
	ErrLengthMismatch = errors.New("chunks and embeddings must have the same length")
)

// Document is one ingested file. The content hash is unique across all
// documents.
type Document struct {
	ID          uuid.UUID
	Filename    string
	ContentType string
	FileHash    string
	CreatedAt   time.Time
}

// DocumentInfo is a listing row: document metadata plus its chunk count.
type DocumentInfo struct {
	ID          uuid.UUID
	Filename    string
	ContentType string
	CreatedAt   time.Time
	ChunkCount  int
}

// ChunkInput is one chunk to persist during ingestion.
type ChunkInput struct {
	Index int
	Text  string
}

// RetrievedChunk is a similarity-search hit. Distance is cosine distance in
// [0, 2]; lower is more similar.
type RetrievedChunk struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Text       string
	Distance   float64
}

// QueryLogEntry is the telemetry captured for one query call.
type QueryLogEntry struct {
	QueryText        string
	ChunksUsed       int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	EstimatedCostUSD *float64
	LatencyMs        int64
}

// QueryLog is a persisted telemetry row. Rows are append-only and never
// mutated after creation.
type QueryLog struct {
	ID               uuid.UUID
	QueryText        string
	ChunksUsed       int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	EstimatedCostUSD *float64
	LatencyMs        int64
	CreatedAt        time.Time
}

// SystemPrompt is one version of a named system prompt. At most one version
// per name is active at a time.
type SystemPrompt struct {
	ID        uuid.UUID
	Name      string
	Version   int
	Content   string
	Author    *string
	IsActive  bool
	CreatedAt time.Time
}

// Metrics is an aggregate snapshot computed at call time. Averages and cost
// are nil when no query has been logged yet.
type Metrics struct {
	TotalQueries          int
	TotalDocuments        int
	TotalChunks           int
	AvgLatencyMs          *float64
	TotalTokens           int
	AvgTokensPerQuery     *float64
	TotalEstimatedCostUSD *float64
}

// Store is the persistence boundary: documents, chunks with embeddings,
// query telemetry, versioned system prompts, and aggregate metrics.
// Implementations own transactional consistency for the multi-row
// operations (IngestDocument, ActivatePrompt).
type Store interface {
	// FindByHash returns the id of the document with the given content
	// hash, if one was already ingested.
	FindByHash(ctx context.Context, hash string) (uuid.UUID, bool, error)

	// CreateDocument inserts a document row. Returns ErrDuplicateHash when
	// a document with the same content hash already exists.
	CreateDocument(ctx context.Context, filename, contentType, hash string) (uuid.UUID, error)

	// AddChunks persists the chunks of a document together with their
	// embeddings. Returns ErrLengthMismatch when the slices differ in
	// length.
	AddChunks(ctx context.Context, documentID uuid.UUID, chunks []ChunkInput, embeddings [][]float32) error

	// IngestDocument runs CreateDocument and AddChunks as one unit of
	// work: a failure part-way leaves no document behind.
	IngestDocument(ctx context.Context, filename, contentType, hash string, chunks []ChunkInput, embeddings [][]float32) (uuid.UUID, error)

	// SimilaritySearch returns up to topK chunks ordered by ascending
	// cosine distance from the query vector, optionally restricted to one
	// document. The result set is capped at topK before any threshold
	// filtering by the caller.
	SimilaritySearch(ctx context.Context, queryVec []float32, topK int, documentID *uuid.UUID) ([]RetrievedChunk, error)

	// ListDocuments returns all documents with chunk counts, newest first.
	// Documents with zero chunks are included.
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)

	// DeleteDocument removes a document and all its chunks atomically.
	// The bool reports whether the document existed.
	DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error)

	// LogQuery appends one telemetry row.
	LogQuery(ctx context.Context, entry QueryLogEntry) (uuid.UUID, error)

	// ListQueryLogs returns the most recent telemetry rows, newest first.
	ListQueryLogs(ctx context.Context, limit int) ([]QueryLog, error)

	// CreatePrompt inserts a new version for the named prompt
	// (1 + the highest existing version). New versions start inactive.
	CreatePrompt(ctx context.Context, name, content string, author *string) (*SystemPrompt, error)

	// ActivatePrompt marks the prompt active and deactivates every sibling
	// sharing its name, atomically. Returns ErrNotFound for unknown ids.
	ActivatePrompt(ctx context.Context, id uuid.UUID) (*SystemPrompt, error)

	// GetActivePrompt returns the active version for the name, or nil when
	// none is active.
	GetActivePrompt(ctx context.Context, name string) (*SystemPrompt, error)

	// ListPrompts returns prompt versions ordered by name then descending
	// version, optionally filtered to one name.
	ListPrompts(ctx context.Context, name string) ([]SystemPrompt, error)

	// Metrics computes a fresh aggregate snapshot.
	Metrics(ctx context.Context) (*Metrics, error)
}
