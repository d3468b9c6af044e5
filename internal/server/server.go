package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"knowledge-rag/internal/config"
	"knowledge-rag/internal/embedding"
	"knowledge-rag/internal/ingest"
	"knowledge-rag/internal/parser"
	"knowledge-rag/internal/rag"
	"knowledge-rag/internal/store"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// Server wires the HTTP surface over the store, the embedding provider, and
// the ingestion pipeline.
type Server struct {
	store    store.Store
	embedder embedding.Provider
	ingest   *ingest.Service
	cfg      *config.Config
}

func New(st store.Store, embedder embedding.Provider, cfg *config.Config) *Server {
	return &Server{
		store:    st,
		embedder: embedder,
		ingest:   ingest.NewService(st, embedder, parser.NewPDFExtractor(), &cfg.RAG),
		cfg:      cfg,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", s.health)

	r.POST("/documents", s.uploadDocument)
	r.GET("/documents", s.listDocuments)
	r.DELETE("/documents/:id", s.deleteDocument)

	r.POST("/query", s.query)
	r.GET("/query-logs", s.listQueryLogs)

	r.POST("/prompts", s.createPrompt)
	r.GET("/prompts", s.listPrompts)
	r.PUT("/prompts/:id/activate", s.activatePrompt)

	r.GET("/metrics", s.metrics)
	return r
}

// Run serves on the configured address until the listener fails.
func (s *Server) Run() error {
	return s.Router().Run(s.cfg.Server.Addr)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) uploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.fail(c, err)
		return
	}

	result, err := s.ingest.Ingest(c.Request.Context(),
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		s.fail(c, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyExisted {
		status = http.StatusOK
	}
	c.JSON(status, ingestResponse{
		DocumentID:     result.DocumentID,
		ChunksIngested: result.ChunksIngested,
		AlreadyExisted: result.AlreadyExisted,
		OCRUsed:        result.OCRUsed,
	})
}

func (s *Server) listDocuments(c *gin.Context) {
	docs, err := s.store.ListDocuments(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]documentResponse, len(docs))
	for i, d := range docs {
		out[i] = documentResponse{
			ID:          d.ID,
			Filename:    d.Filename,
			ContentType: d.ContentType,
			CreatedAt:   d.CreatedAt,
			ChunkCount:  d.ChunkCount,
		}
	}
	c.JSON(http.StatusOK, documentListResponse{Documents: out, Total: len(out)})
}

func (s *Server) deleteDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	deleted, err := s.store.DeleteDocument(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var docID *uuid.UUID
	if req.DocumentID != nil {
		id, err := uuid.Parse(*req.DocumentID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document_id"})
			return
		}
		docID = &id
	}

	orch, err := rag.NewOrchestrator(s.store, s.embedder, s.cfg)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp, err := orch.Query(c.Request.Context(), rag.Request{
		Query:          req.Query,
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
		DocumentID:     docID,
		Debug:          req.Debug,
		PromptName:     req.PromptName,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toQueryResponse(resp))
}

func (s *Server) listQueryLogs(c *gin.Context) {
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLogLimit)
	}

	logs, err := s.store.ListQueryLogs(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]queryLogResponse, len(logs))
	for i, l := range logs {
		out[i] = queryLogResponse{
			ID:               l.ID,
			QueryText:        l.QueryText,
			ChunksUsed:       l.ChunksUsed,
			PromptTokens:     l.PromptTokens,
			CompletionTokens: l.CompletionTokens,
			TotalTokens:      l.TotalTokens,
			EstimatedCostUSD: l.EstimatedCostUSD,
			LatencyMs:        l.LatencyMs,
			CreatedAt:        l.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createPrompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prompt, err := s.store.CreatePrompt(c.Request.Context(), req.Name, req.Content, req.Author)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPromptResponse(prompt))
}

func (s *Server) listPrompts(c *gin.Context) {
	prompts, err := s.store.ListPrompts(c.Request.Context(), c.Query("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]promptResponse, len(prompts))
	for i := range prompts {
		out[i] = toPromptResponse(&prompts[i])
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) activatePrompt(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prompt id"})
		return
	}

	prompt, err := s.store.ActivatePrompt(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPromptResponse(prompt))
}

func (s *Server) metrics(c *gin.Context) {
	m, err := s.store.Metrics(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, metricsResponse{
		TotalQueries:          m.TotalQueries,
		TotalDocuments:        m.TotalDocuments,
		TotalChunks:           m.TotalChunks,
		AvgLatencyMs:          m.AvgLatencyMs,
		TotalTokens:           m.TotalTokens,
		AvgTokensPerQuery:     m.AvgTokensPerQuery,
		TotalEstimatedCostUSD: m.TotalEstimatedCostUSD,
	})
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ingest.ErrUnsupportedContentType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	case errors.Is(err, ingest.ErrNoExtractableText):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, rag.ErrCompletion):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("Unhandled request error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
