package embed

// Notes:
// - White-box tests with a fake embeddings client; the batching and
//   reordering logic is what matters, not the provider payloads.

import (
	"context"
	"errors"
	"fmt"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type fakeEmbeddingClient struct {
	batches [][]string
	err     error
	// shuffle reverses the response order to prove reassembly by Index.
	shuffle bool
	// short drops one entry from the response.
	short bool
}

func (f *fakeEmbeddingClient) CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	if f.err != nil {
		return openai.EmbeddingResponse{}, f.err
	}

	texts := req.Convert().Input.([]string)
	f.batches = append(f.batches, texts)

	var resp openai.EmbeddingResponse
	for i := range texts {
		resp.Data = append(resp.Data, openai.Embedding{
			Index:     i,
			Embedding: []float32{float32(i), float32(len(texts[i]))},
		})
	}
	if f.shuffle {
		for i, j := 0, len(resp.Data)-1; i < j; i, j = i+1, j-1 {
			resp.Data[i], resp.Data[j] = resp.Data[j], resp.Data[i]
		}
	}
	if f.short && len(resp.Data) > 0 {
		resp.Data = resp.Data[:len(resp.Data)-1]
	}
	return resp, nil
}

// ---------------------------------------------------------------------------
// TestEmbedBatch
// ---------------------------------------------------------------------------

func TestEmbedBatch(t *testing.T) {
	t.Parallel()

	t.Run("empty input makes no request", func(t *testing.T) {
		t.Parallel()

		client := &fakeEmbeddingClient{}
		vecs, err := NewOpenAI(client).EmbedBatch(context.Background(), nil)
		if err != nil {
			t.Fatalf("EmbedBatch() error = %v", err)
		}
		if vecs != nil {
			t.Errorf("got %v, want nil", vecs)
		}
		if len(client.batches) != 0 {
			t.Errorf("requests = %d, want 0", len(client.batches))
		}
	})

	t.Run("single batch keeps input order", func(t *testing.T) {
		t.Parallel()

		client := &fakeEmbeddingClient{}
		vecs, err := NewOpenAI(client).EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
		if err != nil {
			t.Fatalf("EmbedBatch() error = %v", err)
		}
		if len(vecs) != 3 {
			t.Fatalf("got %d vectors, want 3", len(vecs))
		}
		// Second component encodes text length, proving position matching.
		for i, wantLen := range []float32{1, 2, 3} {
			if vecs[i][1] != wantLen {
				t.Errorf("vecs[%d][1] = %v, want %v", i, vecs[i][1], wantLen)
			}
		}
	})

	t.Run("provider order is reassembled by index", func(t *testing.T) {
		t.Parallel()

		client := &fakeEmbeddingClient{shuffle: true}
		vecs, err := NewOpenAI(client).EmbedBatch(context.Background(), []string{"x", "yy"})
		if err != nil {
			t.Fatalf("EmbedBatch() error = %v", err)
		}
		if vecs[0][0] != 0 || vecs[1][0] != 1 {
			t.Errorf("vectors out of order: %v", vecs)
		}
	})

	t.Run("large input splits into provider-sized batches", func(t *testing.T) {
		t.Parallel()

		texts := make([]string, 250)
		for i := range texts {
			texts[i] = fmt.Sprintf("text %d", i)
		}

		client := &fakeEmbeddingClient{}
		vecs, err := NewOpenAI(client).EmbedBatch(context.Background(), texts)
		if err != nil {
			t.Fatalf("EmbedBatch() error = %v", err)
		}
		if len(vecs) != 250 {
			t.Errorf("got %d vectors, want 250", len(vecs))
		}
		if len(client.batches) != 3 {
			t.Fatalf("requests = %d, want 3", len(client.batches))
		}
		for i, want := range []int{100, 100, 50} {
			if len(client.batches[i]) != want {
				t.Errorf("batch[%d] size = %d, want %d", i, len(client.batches[i]), want)
			}
		}
	})

	t.Run("short response is an error", func(t *testing.T) {
		t.Parallel()

		client := &fakeEmbeddingClient{short: true}
		_, err := NewOpenAI(client).EmbedBatch(context.Background(), []string{"a", "b"})
		if !errors.Is(err, ErrEmbedding) {
			t.Errorf("error = %v, want ErrEmbedding", err)
		}
	})

	t.Run("provider error propagates", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("embeddings down")
		client := &fakeEmbeddingClient{err: boom}
		_, err := NewOpenAI(client).EmbedBatch(context.Background(), []string{"a"})
		if !errors.Is(err, boom) {
			t.Errorf("error = %v, want wrapped %v", err, boom)
		}
	})
}

// ---------------------------------------------------------------------------
// TestDimensions
// ---------------------------------------------------------------------------

func TestDimensions(t *testing.T) {
	t.Parallel()

	if got := NewOpenAI(&fakeEmbeddingClient{}).Dimensions(); got != DefaultDimensions {
		t.Errorf("Dimensions() = %d, want %d", got, DefaultDimensions)
	}
	custom := NewOpenAI(&fakeEmbeddingClient{}, WithModel("text-embedding-3-large", 3072))
	if got := custom.Dimensions(); got != 3072 {
		t.Errorf("Dimensions() = %d, want 3072", got)
	}
}
