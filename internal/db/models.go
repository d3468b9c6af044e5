package db

import (
	"database/sql/driver"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// pgVector serializes a float32 slice into the pgvector text format
// ("[0.1,0.2,...]") on insert. Embeddings are write-only: similarity is
// computed inside Postgres, so the column is never scanned back.
type pgVector []float32

var _ driver.Valuer = pgVector(nil)

func (v pgVector) Value() (driver.Value, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

type documentModel struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	Filename    string    `bun:"filename,notnull"`
	ContentType string    `bun:"content_type,notnull"`
	FileHash    string    `bun:"file_hash,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:now()"`
}

type chunkModel struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	DocumentID uuid.UUID `bun:"document_id,notnull,type:uuid"`
	ChunkIndex int       `bun:"chunk_index,notnull"`
	Text       string    `bun:"text,notnull"`
	Embedding  pgVector  `bun:"embedding,notnull,type:vector"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:now()"`
}

type queryLogModel struct {
	bun.BaseModel `bun:"table:query_logs,alias:q"`

	ID               uuid.UUID `bun:"id,pk,type:uuid"`
	QueryText        string    `bun:"query_text,notnull"`
	ChunksUsed       int       `bun:"chunks_used,notnull"`
	PromptTokens     int       `bun:"prompt_tokens,notnull"`
	CompletionTokens int       `bun:"completion_tokens,notnull"`
	TotalTokens      int       `bun:"total_tokens,notnull"`
	EstimatedCostUSD *float64  `bun:"estimated_cost_usd"`
	LatencyMs        int64     `bun:"latency_ms,notnull"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:now()"`
}

type systemPromptModel struct {
	bun.BaseModel `bun:"table:system_prompts,alias:p"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	Name      string    `bun:"name,notnull"`
	Version   int       `bun:"version,notnull"`
	Content   string    `bun:"content,notnull"`
	Author    *string   `bun:"author"`
	IsActive  bool      `bun:"is_active,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()"`
}
