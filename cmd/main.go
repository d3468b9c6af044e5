package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"knowledge-rag/internal/chromemdb"
	"knowledge-rag/internal/config"
	"knowledge-rag/internal/db"
	"knowledge-rag/internal/embedding"
	"knowledge-rag/internal/helper"
	"knowledge-rag/internal/ingest"
	"knowledge-rag/internal/parser"
	"knowledge-rag/internal/rag"
	"knowledge-rag/internal/server"
	"knowledge-rag/internal/store"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to a PDF to ingest, then exit")
	query := flag.String("query", "", "Question to answer, then exit")
	flag.Parse()

	if *filePath != "" && *query != "" {
		log.Fatal().Msg("Please provide either -file or -query, but not both")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}

	embedder, err := embedding.New(&cfg.Embedding)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating embedding provider")
	}

	ctx := context.Background()
	st, cleanup, err := openStore(ctx, cfg, embedder.Dim())
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening store")
	}
	defer cleanup()

	switch {
	case *filePath != "":
		ingestFile(ctx, st, embedder, cfg, *filePath)
	case *query != "":
		answerQuery(ctx, st, embedder, cfg, *query)
	default:
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting HTTP server")
		if err := server.New(st, embedder, cfg).Run(); err != nil {
			log.Fatal().Err(err).Msg("Server stopped")
		}
	}
}

// openStore selects the persistence backend from config. The postgres
// backend creates its schema on startup, sized to the embedding dimension.
func openStore(ctx context.Context, cfg *config.Config, vectorSize int) (store.Store, func(), error) {
	switch cfg.Store {
	case "postgres":
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		bunDB := db.NewDB(sqldb, cfg.Database.Debug)
		if err := db.InitDB(ctx, bunDB, vectorSize); err != nil {
			bunDB.Close()
			return nil, nil, err
		}
		return db.NewStore(bunDB), func() { bunDB.Close() }, nil
	case "memory", "":
		st, err := chromemdb.NewStore()
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

func ingestFile(ctx context.Context, st store.Store, embedder embedding.Provider, cfg *config.Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading file")
	}

	svc := ingest.NewService(st, embedder, parser.NewPDFExtractor(), &cfg.RAG)
	result, err := svc.Ingest(ctx, path, "application/pdf", data)
	if err != nil {
		log.Fatal().Err(err).Msg("Error ingesting document")
	}
	log.Info().
		Str("document_id", result.DocumentID.String()).
		Int("chunks", result.ChunksIngested).
		Bool("already_existed", result.AlreadyExisted).
		Msg("Document ingested")
}

func answerQuery(ctx context.Context, st store.Store, embedder embedding.Provider, cfg *config.Config, question string) {
	orch, err := rag.NewOrchestrator(st, embedder, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating query orchestrator")
	}

	resp, err := orch.Query(ctx, rag.Request{Query: question})
	if err != nil {
		log.Fatal().Err(err).Msg("Error answering query")
	}
	helper.PrettyPrint(resp)
}
