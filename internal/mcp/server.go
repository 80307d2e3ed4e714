package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alnah/lytt/internal/orchestrator"
	"github.com/alnah/lytt/internal/rag"
	"github.com/alnah/lytt/internal/store"
	"github.com/alnah/lytt/internal/transcript"
)

// Version is reported in the initialize handshake.
const Version = "0.1.0"

// Processor runs the indexing pipeline.
type Processor interface {
	Process(ctx context.Context, input string, opts orchestrator.ProcessOptions) (orchestrator.Result, error)
}

// Asker answers questions over the index.
type Asker interface {
	Ask(ctx context.Context, question string) (rag.Answer, error)
}

// ContextSearcher retrieves scored excerpts for a query.
type ContextSearcher interface {
	Build(ctx context.Context, query string) ([]rag.ContextChunk, error)
}

// Storage is the slice of the store the server reads directly.
type Storage interface {
	ListMedia(ctx context.Context) ([]store.IndexedMedia, error)
	GetTranscript(ctx context.Context, mediaID string) (store.StoredTranscript, error)
}

// Server handles one MCP session over a line-delimited stream. Stdout
// carries only JSON-RPC frames; all logging goes through the (stderr)
// logger.
type Server struct {
	processor Processor
	asker     Asker
	searcher  ContextSearcher
	storage   Storage
	log       zerolog.Logger
}

// NewServer creates a Server.
func NewServer(processor Processor, asker Asker, searcher ContextSearcher, storage Storage, log zerolog.Logger) *Server {
	return &Server{processor: processor, asker: asker, searcher: searcher, storage: storage, log: log}
}

// Serve reads requests line by line until EOF or context cancellation.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		resp := s.Handle(ctx, []byte(line))
		if resp == nil {
			continue
		}
		data, err := json.Marshal(resp)
		if err != nil {
			s.log.Error().Err(err).Msg("cannot encode response")
			continue
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}

// Handle processes one raw frame. A nil return means no reply is due.
func (s *Server) Handle(ctx context.Context, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return fail(nil, CodeParseError, "parse error")
	}
	s.log.Debug().Str("method", req.Method).Msg("request")

	switch req.Method {
	case "initialize":
		return ok(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{"name": "lytt", "version": Version},
		})
	case "notifications/initialized", "initialized":
		return nil
	case "tools/list":
		return ok(req.ID, map[string]any{"tools": toolDefs()})
	case "tools/call":
		return s.handleToolCall(ctx, req)
	default:
		return fail(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// toolCallParams is the params shape of tools/call.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolCall(ctx context.Context, req Request) *Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return fail(req.ID, CodeInvalidParams, "tools/call needs a tool name")
	}

	result, err := s.callTool(ctx, params.Name, params.Arguments)
	if err != nil {
		var unknown *unknownToolError
		if errors.As(err, &unknown) {
			return fail(req.ID, CodeInvalidParams, unknown.Error())
		}
		s.log.Error().Err(err).Str("tool", params.Name).Msg("tool failed")
		return ok(req.ID, errorResult(err.Error()))
	}
	return ok(req.ID, textResult(result))
}

type unknownToolError struct{ name string }

func (e *unknownToolError) Error() string { return "unknown tool: " + e.name }

func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	switch name {
	case "transcribe":
		return s.toolTranscribe(ctx, args)
	case "search":
		return s.toolSearch(ctx, args)
	case "ask":
		return s.toolAsk(ctx, args)
	case "list_media":
		return s.toolListMedia(ctx)
	case "get_transcript":
		return s.toolGetTranscript(ctx, args)
	default:
		return "", &unknownToolError{name: name}
	}
}

func (s *Server) toolTranscribe(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Input string `json:"input"`
		Force bool   `json:"force"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.Input == "" {
		return "", fmt.Errorf("transcribe needs an input")
	}
	result, err := s.processor.Process(ctx, params.Input, orchestrator.ProcessOptions{Force: params.Force})
	if err != nil {
		return "", err
	}
	if result.Skipped {
		return fmt.Sprintf("%s is already indexed.", result.MediaID), nil
	}
	return fmt.Sprintf("Indexed %q (%s) into %d chunks.", result.Title, result.MediaID, result.ChunksIndexed), nil
}

func (s *Server) toolSearch(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.Query == "" {
		return "", fmt.Errorf("search needs a query")
	}

	chunks, err := s.searcher.Build(ctx, params.Query)
	if err != nil {
		return "", err
	}
	if params.Limit > 0 && len(chunks) > params.Limit {
		chunks = chunks[:params.Limit]
	}
	if len(chunks) == 0 {
		return "No matching passages found.", nil
	}
	return rag.FormatContext(chunks), nil
}

func (s *Server) toolAsk(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.Question == "" {
		return "", fmt.Errorf("ask needs a question")
	}
	answer, err := s.asker.Ask(ctx, params.Question)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(answer.Text)
	if len(answer.Sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, src := range answer.Sources {
			fmt.Fprintf(&b, "- %s (%s)\n", src.MediaTitle, src.Timestamp)
		}
	}
	return b.String(), nil
}

func (s *Server) toolListMedia(ctx context.Context) (string, error) {
	media, err := s.storage.ListMedia(ctx)
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

func (s *Server) toolGetTranscript(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		MediaID string `json:"media_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.MediaID == "" {
		return "", fmt.Errorf("get_transcript needs a media_id")
	}
	stored, err := s.storage.GetTranscript(ctx, params.MediaID)
	if err != nil {
		return "", err
	}

	var tr transcript.Transcript
	if err := json.Unmarshal([]byte(stored.TranscriptJSON), &tr); err != nil {
		return "", fmt.Errorf("corrupt stored transcript for %s", params.MediaID)
	}
	return fmt.Sprintf("Transcript of %q:\n\n%s", stored.MediaTitle, tr.WithTimestamps()), nil
}

func toolDefs() []ToolDef {
	return []ToolDef{
		{
			Name:        "transcribe",
			Description: "Transcribe and index a video URL or local media file.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"input":{"type":"string","description":"URL or file path"},
				"force":{"type":"boolean","description":"Re-index even if already indexed"}},
				"required":["input"]}`),
		},
		{
			Name:        "search",
			Description: "Search indexed transcripts for passages matching a query.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"query":{"type":"string"},
				"limit":{"type":"integer"}},
				"required":["query"]}`),
		},
		{
			Name:        "ask",
			Description: "Answer a question using the indexed transcripts.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"question":{"type":"string"}},
				"required":["question"]}`),
		},
		{
			Name:        "list_media",
			Description: "List all indexed media.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "get_transcript",
			Description: "Return the stored transcript of one media item.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"media_id":{"type":"string"}},
				"required":["media_id"]}`),
		},
	}
}
