// Package agent runs a bounded tool-calling loop over the indexed
// library, letting the chat model search and read transcripts itself.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/lytt/internal/store"
	"github.com/alnah/lytt/internal/transcript"
)

// ErrAgent indicates the agent loop failed.
var ErrAgent = errors.New("agent failure")

// ErrUnknownTool indicates the model requested a tool that is not
// registered.
var ErrUnknownTool = errors.New("unknown tool")

// Search behaviour inside the toolbox.
const (
	searchThreshold  = 0.3
	defaultSearchLim = 5
	snippetMaxChars  = 500
)

// Storage is the slice of the store the toolbox needs.
type Storage interface {
	SearchWithThreshold(ctx context.Context, queryVec []float32, limit int, minScore float64) ([]store.SearchResult, error)
	GetByMedia(ctx context.Context, mediaID string) ([]store.Document, error)
	ListMedia(ctx context.Context) ([]store.IndexedMedia, error)
	GetMedia(ctx context.Context, mediaID string) (store.IndexedMedia, error)
}

// Embedder embeds search queries.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Toolbox executes the fixed tool registry.
type Toolbox struct {
	storage  Storage
	embedder Embedder
}

// NewToolbox creates a Toolbox.
func NewToolbox(storage Storage, embedder Embedder) *Toolbox {
	return &Toolbox{storage: storage, embedder: embedder}
}

// Catalogue returns the tool definitions advertised to the model.
func (t *Toolbox) Catalogue() []openai.Tool {
	defs := []struct {
		name, description string
		schema            string
	}{
		{
			name:        "search_transcripts",
			description: "Search the indexed transcripts for passages relevant to a query.",
			schema: `{"type":"object","properties":{
				"query":{"type":"string","description":"What to search for"},
				"limit":{"type":"integer","description":"Maximum results, default 5"}},
				"required":["query"]}`,
		},
		{
			name:        "get_transcript",
			description: "Return the full transcript of one indexed media item.",
			schema: `{"type":"object","properties":{
				"media_id":{"type":"string","description":"Media identifier"}},
				"required":["media_id"]}`,
		},
		{
			name:        "get_transcript_segment",
			description: "Return the transcript passages overlapping a time range.",
			schema: `{"type":"object","properties":{
				"media_id":{"type":"string","description":"Media identifier"},
				"start_seconds":{"type":"number","description":"Range start"},
				"end_seconds":{"type":"number","description":"Range end"}},
				"required":["media_id","start_seconds","end_seconds"]}`,
		},
		{
			name:        "list_videos",
			description: "List every indexed media item with its id and title.",
			schema:      `{"type":"object","properties":{}}`,
		},
		{
			name:        "get_video_info",
			description: "Return chunk count and duration for one indexed media item.",
			schema: `{"type":"object","properties":{
				"media_id":{"type":"string","description":"Media identifier"}},
				"required":["media_id"]}`,
		},
	}

	tools := make([]openai.Tool, len(defs))
	for i, def := range defs {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.name,
				Description: def.description,
				Parameters:  json.RawMessage(def.schema),
			},
		}
	}
	return tools
}

// Execute runs one tool call and renders its result as text for the
// model.
func (t *Toolbox) Execute(ctx context.Context, name, arguments string) (string, error) {
	switch name {
	case "search_transcripts":
		return t.search(ctx, arguments)
	case "get_transcript":
		return t.getTranscript(ctx, arguments)
	case "get_transcript_segment":
		return t.getSegment(ctx, arguments)
	case "list_videos":
		return t.listVideos(ctx)
	case "get_video_info":
		return t.videoInfo(ctx, arguments)
	default:
		return "", fmt.Errorf("%q: %w", name, ErrUnknownTool)
	}
}

func (t *Toolbox) search(ctx context.Context, arguments string) (string, error) {
	var args struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.Query == "" {
		return "", fmt.Errorf("search_transcripts needs a query: %w", ErrAgent)
	}
	if args.Limit <= 0 {
		args.Limit = defaultSearchLim
	}

	vecs, err := t.embedder.EmbedBatch(ctx, []string{args.Query})
	if err != nil {
		return "", err
	}
	if len(vecs) != 1 {
		return "", fmt.Errorf("expected one query embedding: %w", ErrAgent)
	}
	results, err := t.storage.SearchWithThreshold(ctx, vecs[0], args.Limit, searchThreshold)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No matching passages found.", nil
	}

	var b strings.Builder
	for i, res := range results {
		doc := res.Document
		fmt.Fprintf(&b, "%d. %s [%s] (%s - %s, score %.2f)\n%s\n\n",
			i+1, doc.MediaTitle, doc.MediaID,
			transcript.FormatTimestamp(doc.StartSeconds),
			transcript.FormatTimestamp(doc.EndSeconds),
			res.Score, snippet(doc.Content))
	}
	return b.String(), nil
}

func (t *Toolbox) getTranscript(ctx context.Context, arguments string) (string, error) {
	mediaID, err := mediaIDArg(arguments)
	if err != nil {
		return "", err
	}
	docs, err := t.storage.GetByMedia(ctx, mediaID)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("no transcript indexed for %s: %w", mediaID, ErrAgent)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Transcript of %s:\n\n", docs[0].MediaTitle)
	for _, doc := range docs {
		fmt.Fprintf(&b, "[%s] %s\n",
			transcript.FormatTimestamp(doc.StartSeconds), strings.TrimSpace(doc.Content))
	}
	return b.String(), nil
}

func (t *Toolbox) getSegment(ctx context.Context, arguments string) (string, error) {
	var args struct {
		MediaID      string  `json:"media_id"`
		StartSeconds float64 `json:"start_seconds"`
		EndSeconds   float64 `json:"end_seconds"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.MediaID == "" {
		return "", fmt.Errorf("get_transcript_segment needs media_id and a time range: %w", ErrAgent)
	}

	docs, err := t.storage.GetByMedia(ctx, args.MediaID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, doc := range docs {
		if doc.StartSeconds < args.EndSeconds && doc.EndSeconds > args.StartSeconds {
			fmt.Fprintf(&b, "[%s - %s] %s\n",
				transcript.FormatTimestamp(doc.StartSeconds),
				transcript.FormatTimestamp(doc.EndSeconds),
				strings.TrimSpace(doc.Content))
		}
	}
	if b.Len() == 0 {
		return "No passages in that time range.", nil
	}
	return b.String(), nil
}

func (t *Toolbox) listVideos(ctx context.Context) (string, error) {
	media, err := t.storage.ListMedia(ctx)
	if err != nil {
		return "", err
	}
	if len(media) == 0 {
		return "No media indexed yet.", nil
	}

	var b strings.Builder
	for _, m := range media {
		fmt.Fprintf(&b, "- %s [%s]: %d chunks, %s\n",
			m.MediaTitle, m.MediaID, m.ChunkCount,
			transcript.FormatTimestamp(m.TotalDurationSeconds))
	}
	return b.String(), nil
}

func (t *Toolbox) videoInfo(ctx context.Context, arguments string) (string, error) {
	mediaID, err := mediaIDArg(arguments)
	if err != nil {
		return "", err
	}
	m, err := t.storage.GetMedia(ctx, mediaID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s [%s]: %d chunks, total duration %s",
		m.MediaTitle, m.MediaID, m.ChunkCount,
		transcript.FormatTimestamp(m.TotalDurationSeconds)), nil
}

func mediaIDArg(arguments string) (string, error) {
	var args struct {
		MediaID string `json:"media_id"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.MediaID == "" {
		return "", fmt.Errorf("media_id is required: %w", ErrAgent)
	}
	return args.MediaID, nil
}

// snippet truncates content for search listings.
func snippet(content string) string {
	content = strings.TrimSpace(content)
	if len(content) <= snippetMaxChars {
		return content
	}
	return content[:snippetMaxChars] + "..."
}
