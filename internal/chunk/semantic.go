package chunk

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/lytt/internal/apierr"
	"github.com/alnah/lytt/internal/prompts"
	"github.com/alnah/lytt/internal/transcript"
)

// chatAPI is the slice of the OpenAI client the semantic chunker uses.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Semantic asks a chat model to propose topic sections, then cuts the
// transcript along them. Any model or parse failure falls back to
// temporal chunking, so indexing never fails on a flaky reply.
type Semantic struct {
	chat     chatAPI
	model    string
	library  *prompts.Library
	cfg      Config
	fallback *Temporal
	log      zerolog.Logger
}

var _ Chunker = (*Semantic)(nil)

// SemanticOption configures a Semantic chunker.
type SemanticOption func(*Semantic)

// WithSemanticLogger sets the chunker logger.
func WithSemanticLogger(log zerolog.Logger) SemanticOption {
	return func(s *Semantic) { s.log = log }
}

// NewSemantic creates a semantic chunker with temporal fallback.
func NewSemantic(chat chatAPI, model string, library *prompts.Library, cfg Config, opts ...SemanticOption) *Semantic {
	s := &Semantic{
		chat:     chat,
		model:    model,
		library:  library,
		cfg:      cfg.normalize(),
		fallback: NewTemporal(cfg),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// section is one entry of the model's proposed segmentation.
type section struct {
	Title        string  `json:"title"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Summary      string  `json:"summary,omitempty"`
}

func (s *Semantic) Chunk(ctx context.Context, mediaID string, tr *transcript.Transcript) ([]Chunk, error) {
	if len(tr.Segments) == 0 {
		return nil, nil
	}

	total := tr.Segments[len(tr.Segments)-1].End
	if total < s.cfg.MinSeconds {
		return singleChunk(mediaID, tr), nil
	}

	sections, err := s.proposeSections(ctx, tr)
	if err != nil {
		s.log.Warn().Err(err).Str("media_id", mediaID).Msg("semantic chunking failed, using temporal fallback")
		return s.fallback.Chunk(ctx, mediaID, tr)
	}

	chunks := s.build(mediaID, tr, sections)
	if len(chunks) == 0 {
		return s.fallback.Chunk(ctx, mediaID, tr)
	}
	return chunks, nil
}

// proposeSections asks the model for a section list.
func (s *Semantic) proposeSections(ctx context.Context, tr *transcript.Transcript) ([]section, error) {
	prompt, err := s.library.Render(prompts.SemanticChunking, map[string]string{
		"transcript":     tr.WithTimestamps(),
		"target_seconds": fmt.Sprintf("%.0f", s.cfg.TargetSeconds),
		"min_seconds":    fmt.Sprintf("%.0f", s.cfg.MinSeconds),
		"max_seconds":    fmt.Sprintf("%.0f", s.cfg.MaxSeconds),
	})
	if err != nil {
		return nil, err
	}

	resp, err := apierr.Do(ctx, func() (openai.ChatCompletionResponse, error) {
		return s.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: s.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: math.SmallestNonzeroFloat32,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("section proposal: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("section proposal returned no choices: %w", ErrChunking)
	}

	return parseSections(resp.Choices[0].Message.Content)
}

// parseSections extracts the outermost JSON array from the reply. Models
// wrap arrays in prose or code fences often enough that plain
// json.Unmarshal on the whole reply is not reliable.
func parseSections(reply string) ([]section, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in reply: %w", ErrChunking)
	}

	var sections []section
	if err := json.Unmarshal([]byte(reply[start:end+1]), &sections); err != nil {
		return nil, fmt.Errorf("parse sections: %w", ErrChunking)
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("empty section list: %w", ErrChunking)
	}
	return sections, nil
}

// build cuts the transcript along the proposed sections, merging
// undersized sections into their predecessor.
func (s *Semantic) build(mediaID string, tr *transcript.Transcript, sections []section) []Chunk {
	var chunks []Chunk
	for _, sec := range sections {
		if sec.EndSeconds <= sec.StartSeconds {
			continue
		}
		text := tr.TextBetween(sec.StartSeconds, sec.EndSeconds)
		if text == "" {
			continue
		}

		short := sec.EndSeconds-sec.StartSeconds < s.cfg.MinSeconds
		if short && len(chunks) > 0 {
			prev := &chunks[len(chunks)-1]
			prev.Text = prev.Text + " " + text
			prev.End = sec.EndSeconds
			continue
		}

		title := strings.TrimSpace(sec.Title)
		if title == "" {
			title = fmt.Sprintf("Section %d", len(chunks)+1)
		}
		chunks = append(chunks, Chunk{
			MediaID: mediaID,
			Title:   title,
			Text:    text,
			Start:   sec.StartSeconds,
			End:     sec.EndSeconds,
			Index:   len(chunks),
		})
	}
	return chunks
}
