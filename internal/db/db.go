package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"knowledge-rag/internal/config"
)

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := normalizeDSN(cfg.URL)
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithPassword(cfg.Password))), nil
}

// normalizeDSN defaults sslmode to disable, respecting any query string the
// URL already carries.
func normalizeDSN(dsn string) string {
	if strings.Contains(dsn, "sslmode=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&sslmode=disable"
	}
	return dsn + "?sslmode=disable"
}

// InitDB creates the pgvector extension and the schema. Idempotent; safe to
// run on every startup. vectorSize must match the dimension of the active
// embedding provider.
func InitDB(ctx context.Context, db *bun.DB, vectorSize int) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			id uuid PRIMARY KEY,
			filename varchar(512) NOT NULL,
			content_type varchar(128) NOT NULL DEFAULT 'application/pdf',
			file_hash varchar(64) NOT NULL UNIQUE,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id uuid PRIMARY KEY,
			document_id uuid NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
			chunk_index int NOT NULL,
			text text NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, vectorSize),
		`CREATE INDEX IF NOT EXISTS ix_chunks_document_id ON chunks (document_id)`,
		`CREATE TABLE IF NOT EXISTS query_logs (
			id uuid PRIMARY KEY,
			query_text text NOT NULL,
			chunks_used int NOT NULL DEFAULT 0,
			prompt_tokens int NOT NULL DEFAULT 0,
			completion_tokens int NOT NULL DEFAULT 0,
			total_tokens int NOT NULL DEFAULT 0,
			estimated_cost_usd double precision,
			latency_ms bigint NOT NULL DEFAULT 0,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS system_prompts (
			id uuid PRIMARY KEY,
			name varchar(128) NOT NULL,
			version int NOT NULL,
			content text NOT NULL,
			author varchar(256),
			is_active boolean NOT NULL DEFAULT false,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS ix_system_prompts_name ON system_prompts (name)`,
	}
	for _, q := range queries {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
	}
	return nil
}
