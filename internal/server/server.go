// Package server exposes the pipeline over HTTP JSON.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/alnah/lytt/internal/media"
	"github.com/alnah/lytt/internal/orchestrator"
	"github.com/alnah/lytt/internal/rag"
	"github.com/alnah/lytt/internal/store"
	"github.com/alnah/lytt/internal/transcript"
)

// Processor runs the indexing pipeline.
type Processor interface {
	Process(ctx context.Context, input string, opts orchestrator.ProcessOptions) (orchestrator.Result, error)
}

// Embedder embeds search queries.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Storage is the slice of the store the handlers read.
type Storage interface {
	SearchWithThreshold(ctx context.Context, queryVec []float32, limit int, minScore float64) ([]store.SearchResult, error)
	ListMedia(ctx context.Context) ([]store.IndexedMedia, error)
	GetMedia(ctx context.Context, mediaID string) (store.IndexedMedia, error)
	GetByMedia(ctx context.Context, mediaID string) ([]store.Document, error)
}

// Asker answers one-shot questions.
type Asker interface {
	Ask(ctx context.Context, question string) (rag.Answer, error)
}

// AskerFactory builds a one-shot answering engine; model and maxChunks
// come from the request, empty model meaning the configured default.
type AskerFactory func(model string, maxChunks int) Asker

// Server wraps the gin engine and its dependencies.
type Server struct {
	engine    *gin.Engine
	processor Processor
	embedder  Embedder
	storage   Storage
	newAsker  AskerFactory
	log       zerolog.Logger
}

// New creates a Server with all routes registered.
func New(processor Processor, embedder Embedder, storage Storage, newAsker AskerFactory, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:    gin.New(),
		processor: processor,
		embedder:  embedder,
		storage:   storage,
		newAsker:  newAsker,
		log:       log,
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.POST("/transcribe", s.handleTranscribe)
	s.engine.POST("/search", s.handleSearch)
	s.engine.POST("/ask", s.handleAsk)
	s.engine.GET("/media", s.handleListMedia)
	s.engine.GET("/media/:id", s.handleGetMedia)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.log.Info().Str("addr", addr).Msg("http server listening")
	return s.engine.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type transcribeRequest struct {
	Input string `json:"input" binding:"required"`
	Force bool   `json:"force"`
}

type transcribeResponse struct {
	Success       bool   `json:"success"`
	MediaID       string `json:"media_id"`
	Title         string `json:"title"`
	ChunksIndexed int    `json:"chunks_indexed"`
	Error         string `json:"error,omitempty"`
}

func (s *Server) handleTranscribe(c *gin.Context) {
	var req transcribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "input is required"})
		return
	}

	result, err := s.processor.Process(c.Request.Context(), req.Input, orchestrator.ProcessOptions{Force: req.Force})
	if err != nil {
		s.log.Error().Err(err).Str("input", req.Input).Msg("transcribe failed")
		status := http.StatusInternalServerError
		if errors.Is(err, media.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, transcribeResponse{
		Success:       true,
		MediaID:       result.MediaID,
		Title:         result.Title,
		ChunksIndexed: result.ChunksIndexed,
	})
}

type searchRequest struct {
	Query    string   `json:"query" binding:"required"`
	Limit    int      `json:"limit"`
	MinScore *float64 `json:"min_score"`
}

type searchHit struct {
	MediaID      string  `json:"media_id"`
	MediaTitle   string  `json:"media_title"`
	ChunkTitle   string  `json:"chunk_title"`
	Content      string  `json:"content"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Timestamp    string  `json:"timestamp"`
	Score        float64 `json:"score"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}
	minScore := rag.DefaultMinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}

	ctx := c.Request.Context()
	vecs, err := s.embedder.EmbedBatch(ctx, []string{req.Query})
	if err != nil || len(vecs) != 1 {
		s.log.Error().Err(err).Msg("query embedding failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot embed query"})
		return
	}
	results, err := s.storage.SearchWithThreshold(ctx, vecs[0], req.Limit, minScore)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	hits := make([]searchHit, len(results))
	for i, res := range results {
		doc := res.Document
		hits[i] = searchHit{
			MediaID:      doc.MediaID,
			MediaTitle:   doc.MediaTitle,
			ChunkTitle:   doc.SectionTitle,
			Content:      doc.Content,
			StartSeconds: doc.StartSeconds,
			EndSeconds:   doc.EndSeconds,
			Timestamp:    transcript.FormatTimestamp(doc.StartSeconds),
			Score:        res.Score,
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}

type askRequest struct {
	Question  string `json:"question" binding:"required"`
	MaxChunks int    `json:"max_chunks"`
	Model     string `json:"model"`
}

func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	if req.MaxChunks <= 0 {
		req.MaxChunks = rag.DefaultMaxChunks
	}

	answer, err := s.newAsker(req.Model, req.MaxChunks).Ask(c.Request.Context(), req.Question)
	if err != nil {
		s.log.Error().Err(err).Msg("ask failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer.Text, "sources": answer.Sources})
}

func (s *Server) handleListMedia(c *gin.Context) {
	media, err := s.storage.ListMedia(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]gin.H, len(media))
	for i, m := range media {
		items[i] = gin.H{
			"media_id":               m.MediaID,
			"media_title":            m.MediaTitle,
			"chunk_count":            m.ChunkCount,
			"total_duration_seconds": m.TotalDurationSeconds,
			"indexed_at":             m.IndexedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"media": items, "total": len(items)})
}

func (s *Server) handleGetMedia(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	m, err := s.storage.GetMedia(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	docs, err := s.storage.GetByMedia(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	chunks := make([]gin.H, len(docs))
	for i, doc := range docs {
		chunks[i] = gin.H{
			"chunk_title":   doc.SectionTitle,
			"content":       doc.Content,
			"start_seconds": doc.StartSeconds,
			"end_seconds":   doc.EndSeconds,
			"chunk_order":   doc.ChunkOrder,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"media_id":               m.MediaID,
		"media_title":            m.MediaTitle,
		"chunk_count":            m.ChunkCount,
		"total_duration_seconds": m.TotalDurationSeconds,
		"chunks":                 chunks,
	})
}
