package rag

// Notes:
// - White-box tests: the chat history and the context builder share
//   unexported fakes, and trimHistory is easier to pin down directly.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/lytt/internal/prompts"
	"github.com/alnah/lytt/internal/store"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{1, 0}
	}
	return vecs, nil
}

type fakeSearcher struct {
	results []store.SearchResult
	err     error
	limits  []int
	scores  []float64
}

func (f *fakeSearcher) SearchWithThreshold(ctx context.Context, queryVec []float32, limit int, minScore float64) ([]store.SearchResult, error) {
	f.limits = append(f.limits, limit)
	f.scores = append(f.scores, minScore)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}

type fakeChat struct {
	replies  []string
	requests []openai.ChatCompletionRequest
	err      error
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	reply := "answer"
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: reply}},
		},
	}, nil
}

func hit(mediaID string, start float64, content string, score float64) store.SearchResult {
	return store.SearchResult{
		Document: store.Document{
			MediaID:      mediaID,
			MediaTitle:   "Title of " + mediaID,
			Content:      content,
			StartSeconds: start,
			EndSeconds:   start + 60,
		},
		Score: score,
	}
}

// ---------------------------------------------------------------------------
// ContextBuilder
// ---------------------------------------------------------------------------

func TestBuild(t *testing.T) {
	t.Parallel()

	t.Run("maps hits to excerpts", func(t *testing.T) {
		t.Parallel()

		searcher := &fakeSearcher{results: []store.SearchResult{
			hit("dQw4w9WgXcQ", 90, "chunk content", 0.9),
		}}
		builder := NewContextBuilder(&fakeEmbedder{}, searcher)

		chunks, err := builder.Build(context.Background(), "question")
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if len(chunks) != 1 {
			t.Fatalf("got %d chunks, want 1", len(chunks))
		}
		c := chunks[0]
		if c.Timestamp != "01:30 - 02:30" {
			t.Errorf("Timestamp = %q", c.Timestamp)
		}
		if c.URL != "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=90s" {
			t.Errorf("URL = %q", c.URL)
		}
		if c.Score != 0.9 || c.Content != "chunk content" {
			t.Errorf("chunk = %+v", c)
		}
	})

	t.Run("local media gets no deep link", func(t *testing.T) {
		t.Parallel()

		searcher := &fakeSearcher{results: []store.SearchResult{
			hit("local_my_recording", 0, "content", 0.8),
		}}
		chunks, err := NewContextBuilder(&fakeEmbedder{}, searcher).Build(context.Background(), "q")
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if chunks[0].URL != "" {
			t.Errorf("URL = %q, want empty for local media", chunks[0].URL)
		}
	})

	t.Run("defaults reach the searcher", func(t *testing.T) {
		t.Parallel()

		searcher := &fakeSearcher{}
		_, err := NewContextBuilder(&fakeEmbedder{}, searcher).Build(context.Background(), "q")
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if searcher.limits[0] != DefaultMaxChunks || searcher.scores[0] != DefaultMinScore {
			t.Errorf("search(limit=%d, minScore=%v), want defaults", searcher.limits[0], searcher.scores[0])
		}
	})

	t.Run("options override defaults", func(t *testing.T) {
		t.Parallel()

		searcher := &fakeSearcher{}
		builder := NewContextBuilder(&fakeEmbedder{}, searcher, WithMaxChunks(3), WithMinScore(0.5))
		if _, err := builder.Build(context.Background(), "q"); err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if searcher.limits[0] != 3 || searcher.scores[0] != 0.5 {
			t.Errorf("search(limit=%d, minScore=%v), want (3, 0.5)", searcher.limits[0], searcher.scores[0])
		}
	})

	t.Run("embedder error propagates", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("embeddings down")
		_, err := NewContextBuilder(&fakeEmbedder{err: boom}, &fakeSearcher{}).Build(context.Background(), "q")
		if !errors.Is(err, boom) {
			t.Errorf("error = %v, want wrapped %v", err, boom)
		}
	})
}

// ---------------------------------------------------------------------------
// FormatContext
// ---------------------------------------------------------------------------

func TestFormatContext(t *testing.T) {
	t.Parallel()

	chunks := []ContextChunk{
		{MediaTitle: "First Talk", Timestamp: "00:00 - 01:00", Content: "alpha", URL: "https://example.com/1"},
		{MediaTitle: "Second Talk", Timestamp: "01:00 - 02:00", Content: "beta"},
	}
	got := FormatContext(chunks)

	if !strings.Contains(got, "[Source: First Talk (00:00 - 01:00)]") {
		t.Errorf("missing first source header:\n%s", got)
	}
	if !strings.Contains(got, "[Link: https://example.com/1]") {
		t.Errorf("missing link line:\n%s", got)
	}
	if strings.Count(got, "\n---\n") != 1 {
		t.Errorf("want one delimiter between two excerpts:\n%s", got)
	}
	if strings.Contains(strings.Split(got, "---")[1], "[Link:") {
		t.Errorf("second excerpt has no URL, must have no link line:\n%s", got)
	}
	if FormatContext(nil) != "" {
		t.Error("no chunks must render to empty context")
	}
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

func testEngine(chat chatAPI, searcher *fakeSearcher) *Engine {
	builder := NewContextBuilder(&fakeEmbedder{}, searcher)
	return NewEngine(chat, builder, prompts.NewLibrary(""), "gpt-4o")
}

func TestAsk(t *testing.T) {
	t.Parallel()

	t.Run("answers with sources", func(t *testing.T) {
		t.Parallel()

		chat := &fakeChat{replies: []string{"grounded answer"}}
		searcher := &fakeSearcher{results: []store.SearchResult{hit("vid1", 0, "the content", 0.8)}}

		ans, err := testEngine(chat, searcher).Ask(context.Background(), "what is discussed?")
		if err != nil {
			t.Fatalf("Ask() error = %v", err)
		}
		if ans.Text != "grounded answer" {
			t.Errorf("Text = %q", ans.Text)
		}
		if len(ans.Sources) != 1 || ans.Sources[0].MediaID != "vid1" {
			t.Errorf("Sources = %+v", ans.Sources)
		}

		req := chat.requests[0]
		if req.Temperature != answerTemperature {
			t.Errorf("Temperature = %v, want %v", req.Temperature, answerTemperature)
		}
		if !strings.Contains(req.Messages[0].Content, "the content") {
			t.Error("system prompt should embed the retrieved context")
		}
	})

	t.Run("no matches short-circuits to the canned answer", func(t *testing.T) {
		t.Parallel()

		chat := &fakeChat{}
		ans, err := testEngine(chat, &fakeSearcher{}).Ask(context.Background(), "unknown topic")
		if err != nil {
			t.Fatalf("Ask() error = %v", err)
		}
		if ans.Text != NoInfoAnswer {
			t.Errorf("Text = %q, want NoInfoAnswer", ans.Text)
		}
		if len(chat.requests) != 0 {
			t.Error("the model must not be called without context")
		}
	})

	t.Run("chat error propagates", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("model offline")
		chat := &fakeChat{err: boom}
		searcher := &fakeSearcher{results: []store.SearchResult{hit("vid1", 0, "x", 0.8)}}
		_, err := testEngine(chat, searcher).Ask(context.Background(), "q")
		if !errors.Is(err, boom) {
			t.Errorf("error = %v, want wrapped %v", err, boom)
		}
	})
}

func TestChat(t *testing.T) {
	t.Parallel()

	t.Run("history accumulates across turns", func(t *testing.T) {
		t.Parallel()

		chat := &fakeChat{replies: []string{"first", "second"}}
		searcher := &fakeSearcher{results: []store.SearchResult{hit("vid1", 0, "context", 0.8)}}
		engine := testEngine(chat, searcher)

		if _, err := engine.Chat(context.Background(), "hello"); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if _, err := engine.Chat(context.Background(), "and then?"); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}

		// system + (user, assistant) x 2
		h := engine.History()
		if len(h) != 5 {
			t.Fatalf("history length = %d, want 5", len(h))
		}
		if h[0].Role != openai.ChatMessageRoleSystem {
			t.Errorf("history[0].Role = %q, want system", h[0].Role)
		}
		if h[2].Content != "first" || h[4].Content != "second" {
			t.Errorf("assistant turns = %q, %q", h[2].Content, h[4].Content)
		}
	})

	t.Run("system prompt follows the latest retrieval", func(t *testing.T) {
		t.Parallel()

		chat := &fakeChat{}
		searcher := &fakeSearcher{results: []store.SearchResult{hit("vid1", 0, "early context", 0.8)}}
		engine := testEngine(chat, searcher)

		if _, err := engine.Chat(context.Background(), "one"); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		searcher.results = []store.SearchResult{hit("vid2", 0, "late context", 0.8)}
		if _, err := engine.Chat(context.Background(), "two"); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}

		if !strings.Contains(engine.History()[0].Content, "late context") {
			t.Error("system message should carry the newest context")
		}
	})

	t.Run("clear resets the conversation", func(t *testing.T) {
		t.Parallel()

		engine := testEngine(&fakeChat{}, &fakeSearcher{})
		if _, err := engine.Chat(context.Background(), "hello"); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		engine.ClearHistory()
		if len(engine.History()) != 0 {
			t.Error("history should be empty after ClearHistory")
		}
	})
}

func TestTrimHistory(t *testing.T) {
	t.Parallel()

	engine := testEngine(&fakeChat{}, &fakeSearcher{})
	engine.history = append(engine.history, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleSystem, Content: "system",
	})
	for i := range 30 {
		engine.history = append(engine.history, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("msg %d", i),
		})
	}

	engine.trimHistory()

	h := engine.History()
	if len(h) != maxHistory {
		t.Fatalf("history length = %d, want %d", len(h), maxHistory)
	}
	if h[0].Content != "system" {
		t.Errorf("history[0] = %q, system message must survive", h[0].Content)
	}
	if h[len(h)-1].Content != "msg 29" {
		t.Errorf("newest message = %q, want msg 29", h[len(h)-1].Content)
	}
	if h[1].Content != "msg 11" {
		t.Errorf("oldest kept = %q, want msg 11", h[1].Content)
	}
}
