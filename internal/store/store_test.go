package store_test

// Notes:
// - Black-box tests against a real SQLite file in t.TempDir(); the pure
//   Go driver needs no cgo, so every test exercises the actual schema.
// - WithNow pins timestamps where ordering matters.

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alnah/lytt/internal/store"
)

func openStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir()+"/index.db", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func doc(mediaID string, order int, embedding []float32) store.Document {
	return store.Document{
		MediaID:      mediaID,
		MediaTitle:   "Title of " + mediaID,
		SectionTitle: "Part",
		Content:      "content",
		StartSeconds: float64(order) * 60,
		EndSeconds:   float64(order+1) * 60,
		Embedding:    embedding,
		ChunkOrder:   order,
	}
}

// ---------------------------------------------------------------------------
// Cosine
// ---------------------------------------------------------------------------

func TestCosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical vectors", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite vectors", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal vectors", []float32{1, 0}, []float32{0, 1}, 0},
		{"scaled vectors still score 1", []float32{1, 2}, []float32{2, 4}, 1},
		{"mismatched dimensions score 0", []float32{1, 2, 3}, []float32{1, 2}, 0},
		{"empty vectors score 0", nil, nil, 0},
		{"one empty vector scores 0", []float32{1}, nil, 0},
		{"zero norm scores 0", []float32{0, 0}, []float32{1, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, store.Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

// ---------------------------------------------------------------------------
// Embedding codec
// ---------------------------------------------------------------------------

func TestEmbeddingRoundTrip(t *testing.T) {
	t.Parallel()

	vec := []float32{0, 1, -1, 0.5, math.MaxFloat32, math.SmallestNonzeroFloat32}
	got := store.BytesToEmbedding(store.EmbeddingToBytes(vec))
	assert.Equal(t, vec, got)
}

func TestBytesToEmbeddingTruncatesPartialFloat(t *testing.T) {
	t.Parallel()

	blob := append(store.EmbeddingToBytes([]float32{1, 2}), 0xAB, 0xCD)
	assert.Equal(t, []float32{1, 2}, store.BytesToEmbedding(blob))
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

func TestUpsertAndGetByMedia(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	d := doc("vid1", 0, []float32{1, 0, 0})
	d.SourceCreatedAt = "2024-03-01"
	require.NoError(t, s.Upsert(ctx, d))

	docs, err := s.GetByMedia(ctx, "vid1")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	got := docs[0]
	assert.NotEmpty(t, got.ID, "missing id should be generated")
	assert.Equal(t, "vid1", got.MediaID)
	assert.Equal(t, "Title of vid1", got.MediaTitle)
	assert.Equal(t, "Part", got.SectionTitle)
	assert.Equal(t, []float32{1, 0, 0}, got.Embedding)
	assert.Equal(t, "2024-03-01", got.SourceCreatedAt)
	assert.False(t, got.IndexedAt.IsZero(), "indexed_at should be set")
}

func TestUpsertSameIDIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	d := doc("vid1", 0, []float32{1})
	d.ID = "fixed-id"
	require.NoError(t, s.Upsert(ctx, d))

	d.Content = "revised"
	require.NoError(t, s.Upsert(ctx, d))

	docs, err := s.GetByMedia(ctx, "vid1")
	require.NoError(t, err)
	require.Len(t, docs, 1, "same id must replace, not duplicate")
	assert.Equal(t, "revised", docs[0].Content)
}

func TestUpsertBatchOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	// Insert out of order; GetByMedia must sort by chunk_order.
	docs := []store.Document{
		doc("vid1", 2, []float32{1}),
		doc("vid1", 0, []float32{1}),
		doc("vid1", 1, []float32{1}),
	}
	require.NoError(t, s.UpsertBatch(ctx, docs))

	got, err := s.GetByMedia(ctx, "vid1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, d := range got {
		assert.Equal(t, i, d.ChunkOrder)
	}
}

func TestReplaceMedia(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.UpsertBatch(ctx, []store.Document{
		doc("vid1", 0, []float32{1}),
		doc("vid1", 1, []float32{1}),
		doc("vid2", 0, []float32{1}),
	}))

	require.NoError(t, s.ReplaceMedia(ctx, "vid1", []store.Document{
		doc("vid1", 0, []float32{2}),
	}))

	vid1, err := s.GetByMedia(ctx, "vid1")
	require.NoError(t, err)
	require.Len(t, vid1, 1, "old vid1 documents must be gone")
	assert.Equal(t, []float32{2}, vid1[0].Embedding)

	vid2, err := s.GetByMedia(ctx, "vid2")
	require.NoError(t, err)
	assert.Len(t, vid2, 1, "other media must be untouched")
}

func TestDeleteByMedia(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.UpsertBatch(ctx, []store.Document{
		doc("vid1", 0, []float32{1}),
		doc("vid1", 1, []float32{1}),
	}))

	n, err := s.DeleteByMedia(ctx, "vid1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.DeleteByMedia(ctx, "vid1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "deleting absent media is not an error")
}

func TestIsIndexed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	indexed, err := s.IsIndexed(ctx, "vid1")
	require.NoError(t, err)
	assert.False(t, indexed)

	require.NoError(t, s.Upsert(ctx, doc("vid1", 0, []float32{1})))

	indexed, err = s.IsIndexed(ctx, "vid1")
	require.NoError(t, err)
	assert.True(t, indexed)
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

func TestSearchRanksByCosine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	near := doc("vid1", 0, []float32{1, 0.1, 0})
	mid := doc("vid1", 1, []float32{1, 1, 0})
	far := doc("vid2", 0, []float32{0, 0, 1})
	require.NoError(t, s.UpsertBatch(ctx, []store.Document{far, mid, near}))

	results, err := s.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, near.ChunkOrder, results[0].Document.ChunkOrder)
	assert.Equal(t, "vid1", results[0].Document.MediaID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, results[2].Score)
	assert.InDelta(t, 0, results[2].Score, 1e-9)
}

func TestSearchWithThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.UpsertBatch(ctx, []store.Document{
		doc("vid1", 0, []float32{1, 0}),
		doc("vid1", 1, []float32{0, 1}),
	}))

	results, err := s.SearchWithThreshold(ctx, []float32{1, 0}, 10, 0.3)
	require.NoError(t, err)
	require.Len(t, results, 1, "orthogonal match must fall below 0.3")
	assert.InDelta(t, 1, results[0].Score, 1e-9)
}

func TestSearchLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	var docs []store.Document
	for i := range 5 {
		docs = append(docs, doc("vid1", i, []float32{1, float32(i) * 0.1}))
	}
	require.NoError(t, s.UpsertBatch(ctx, docs))

	results, err := s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchEmptyStore(t *testing.T) {
	t.Parallel()

	results, err := openStore(t).Search(context.Background(), []float32{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// ---------------------------------------------------------------------------
// Media aggregates
// ---------------------------------------------------------------------------

func TestListMedia(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := openStore(t, store.WithNow(func() time.Time { return current }))

	require.NoError(t, s.UpsertBatch(ctx, []store.Document{
		doc("older", 0, []float32{1}),
		doc("older", 1, []float32{1}),
	}))
	current = current.Add(time.Hour)
	require.NoError(t, s.Upsert(ctx, doc("newer", 0, []float32{1})))

	media, err := s.ListMedia(ctx)
	require.NoError(t, err)
	require.Len(t, media, 2)

	assert.Equal(t, "newer", media[0].MediaID, "newest first")
	assert.Equal(t, "older", media[1].MediaID)
	assert.Equal(t, 2, media[1].ChunkCount)
	assert.InDelta(t, 120, media[1].TotalDurationSeconds, 1e-9)
	assert.Equal(t, "Title of older", media[1].MediaTitle)
}

func TestListMediaDurationIsLastSegmentEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	// First indexed chunk starts mid-media: the duration is still the
	// end of the last chunk, not the indexed span.
	require.NoError(t, s.UpsertBatch(ctx, []store.Document{
		doc("vid1", 1, []float32{1}),
		doc("vid1", 2, []float32{1}),
	}))

	media, err := s.ListMedia(ctx)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.InDelta(t, 180, media[0].TotalDurationSeconds, 1e-9,
		"want max(end_seconds), not max(end)-min(start)")
}

func TestGetMedia(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Upsert(ctx, doc("vid1", 0, []float32{1})))

	m, err := s.GetMedia(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.ChunkCount)

	_, err = s.GetMedia(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Transcripts
// ---------------------------------------------------------------------------

func TestTranscriptRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	payload, err := json.Marshal(map[string]any{"text": "hello", "duration": 12.5})
	require.NoError(t, err)

	require.NoError(t, s.StoreTranscript(ctx, store.StoredTranscript{
		MediaID:         "vid1",
		MediaTitle:      "A Talk",
		TranscriptJSON:  string(payload),
		DurationSeconds: 12.5,
	}))

	got, err := s.GetTranscript(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, "A Talk", got.MediaTitle)
	assert.JSONEq(t, string(payload), got.TranscriptJSON)
	assert.False(t, got.TranscribedAt.IsZero())

	has, err := s.HasTranscript(ctx, "vid1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestStoreTranscriptReplaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	first := store.StoredTranscript{MediaID: "vid1", MediaTitle: "v1", TranscriptJSON: "{}"}
	require.NoError(t, s.StoreTranscript(ctx, first))
	second := store.StoredTranscript{MediaID: "vid1", MediaTitle: "v2", TranscriptJSON: "{}"}
	require.NoError(t, s.StoreTranscript(ctx, second))

	got, err := s.GetTranscript(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.MediaTitle)

	all, err := s.ListTranscripts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetTranscriptMissing(t *testing.T) {
	t.Parallel()

	_, err := openStore(t).GetTranscript(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListTranscriptsNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := openStore(t, store.WithNow(func() time.Time { return current }))

	require.NoError(t, s.StoreTranscript(ctx, store.StoredTranscript{MediaID: "a", MediaTitle: "a", TranscriptJSON: "{}"}))
	current = current.Add(time.Hour)
	require.NoError(t, s.StoreTranscript(ctx, store.StoredTranscript{MediaID: "b", MediaTitle: "b", TranscriptJSON: "{}"}))

	all, err := s.ListTranscripts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].MediaID)
}
