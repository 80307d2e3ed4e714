// Package embed produces vector embeddings for chunk texts and queries.
package embed

import (
	"context"
	"errors"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/lytt/internal/apierr"
)

// ErrEmbedding indicates the embedding provider misbehaved.
var ErrEmbedding = errors.New("embedding failed")

// maxBatchSize is the provider's per-request input limit.
const maxBatchSize = 100

// DefaultModel is the embedding model and its fixed dimensionality.
const (
	DefaultModel      = "text-embedding-3-small"
	DefaultDimensions = 1536
)

// Embedder turns texts into vectors. All vectors from one Embedder have
// the same dimensionality.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// embeddingAPI is the slice of the OpenAI client the embedder uses.
type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAI embeds texts with the OpenAI embeddings endpoint, batching
// requests to the provider limit.
type OpenAI struct {
	client     embeddingAPI
	model      string
	dimensions int
}

var _ Embedder = (*OpenAI)(nil)

// OpenAIOption configures an OpenAI embedder.
type OpenAIOption func(*OpenAI)

// WithModel overrides the embedding model and its dimensionality.
func WithModel(model string, dimensions int) OpenAIOption {
	return func(o *OpenAI) {
		o.model = model
		o.dimensions = dimensions
	}
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(client embeddingAPI, opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		client:     client,
		model:      DefaultModel,
		dimensions: DefaultDimensions,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OpenAI) Dimensions() int {
	return o.dimensions
}

// EmbedBatch embeds texts in provider-sized batches. The result is
// ordered like the input regardless of how the provider orders its
// response data.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(texts))
		batch, err := o.embedOne(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (o *OpenAI) embedOne(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := apierr.Do(ctx, func() (openai.EmbeddingResponse, error) {
		return o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      texts,
			Model:      openai.EmbeddingModel(o.model),
			Dimensions: o.dimensions,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d: %w", len(texts), len(resp.Data), ErrEmbedding)
	}

	data := make([]openai.Embedding, len(resp.Data))
	copy(data, resp.Data)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
