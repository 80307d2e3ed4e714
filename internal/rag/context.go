// Package rag answers questions over the indexed library: retrieve
// relevant chunks, cite them, and let the chat model compose an answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alnah/lytt/internal/media"
	"github.com/alnah/lytt/internal/store"
	"github.com/alnah/lytt/internal/transcript"
)

// ErrRag indicates a retrieval or answering failure.
var ErrRag = errors.New("rag failure")

// Retrieval defaults.
const (
	DefaultMaxChunks = 10
	DefaultMinScore  = 0.3
)

// Searcher is the slice of the store the context builder needs.
type Searcher interface {
	SearchWithThreshold(ctx context.Context, queryVec []float32, limit int, minScore float64) ([]store.SearchResult, error)
}

// Embedder embeds the query text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ContextChunk is one retrieved excerpt ready for citation.
type ContextChunk struct {
	MediaID      string  `json:"media_id"`
	MediaTitle   string  `json:"media_title"`
	Timestamp    string  `json:"timestamp"`
	StartSeconds float64 `json:"start_seconds"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
	URL          string  `json:"url,omitempty"`
}

// ContextBuilder retrieves the excerpts backing an answer.
type ContextBuilder struct {
	embedder  Embedder
	searcher  Searcher
	maxChunks int
	minScore  float64
}

// BuilderOption configures a ContextBuilder.
type BuilderOption func(*ContextBuilder)

// WithMaxChunks bounds how many excerpts are retrieved.
func WithMaxChunks(n int) BuilderOption {
	return func(b *ContextBuilder) {
		if n > 0 {
			b.maxChunks = n
		}
	}
}

// WithMinScore sets the similarity floor.
func WithMinScore(score float64) BuilderOption {
	return func(b *ContextBuilder) { b.minScore = score }
}

// NewContextBuilder creates a ContextBuilder.
func NewContextBuilder(embedder Embedder, searcher Searcher, opts ...BuilderOption) *ContextBuilder {
	b := &ContextBuilder{
		embedder:  embedder,
		searcher:  searcher,
		maxChunks: DefaultMaxChunks,
		minScore:  DefaultMinScore,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build embeds the query and returns the best matching excerpts.
func (b *ContextBuilder) Build(ctx context.Context, query string) ([]ContextChunk, error) {
	vecs, err := b.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected one query embedding, got %d: %w", len(vecs), ErrRag)
	}

	results, err := b.searcher.SearchWithThreshold(ctx, vecs[0], b.maxChunks, b.minScore)
	if err != nil {
		return nil, err
	}

	chunks := make([]ContextChunk, len(results))
	for i, res := range results {
		chunks[i] = chunkFromResult(res)
	}
	return chunks, nil
}

// chunkFromResult maps a search hit to a citable excerpt. Deep links are
// synthesised for remote media only; local files have nowhere to link.
func chunkFromResult(res store.SearchResult) ContextChunk {
	doc := res.Document
	c := ContextChunk{
		MediaID:      doc.MediaID,
		MediaTitle:   doc.MediaTitle,
		Timestamp:    fmt.Sprintf("%s - %s", transcript.FormatTimestamp(doc.StartSeconds), transcript.FormatTimestamp(doc.EndSeconds)),
		StartSeconds: doc.StartSeconds,
		Content:      doc.Content,
		Score:        res.Score,
	}
	if !strings.HasPrefix(doc.MediaID, media.LocalIDPrefix) {
		c.URL = fmt.Sprintf("https://www.youtube.com/watch?v=%s&t=%ds", doc.MediaID, int(doc.StartSeconds))
	}
	return c
}

// FormatContext renders excerpts as delimited blocks with citation
// headers, the shape the answer prompt expects.
func FormatContext(chunks []ContextChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "[Source: %s (%s)]\n", c.MediaTitle, c.Timestamp)
		if c.URL != "" {
			fmt.Fprintf(&b, "[Link: %s]\n", c.URL)
		}
		b.WriteString(strings.TrimSpace(c.Content))
		b.WriteString("\n")
	}
	return b.String()
}
