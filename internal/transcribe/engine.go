// Package transcribe turns audio files into time-aligned transcripts by
// fusing a word-timestamp speech model with an optional higher-quality
// text model.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/lytt/internal/apierr"
	"github.com/alnah/lytt/internal/audio"
	"github.com/alnah/lytt/internal/prompts"
	"github.com/alnah/lytt/internal/transcript"
)

// DefaultMaxParallel bounds concurrent piece transcriptions.
const DefaultMaxParallel = 2

// DefaultSegmentSeconds is the piece length audio is split into before
// transcription. Ten minutes keeps each upload under provider limits.
const DefaultSegmentSeconds = 600.0

// wordTranscriber produces word-timestamped transcriptions.
type wordTranscriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (*WordResult, error)
}

// textTranscriber produces text-only transcriptions.
type textTranscriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// audioSplitter splits long recordings into bounded pieces.
type audioSplitter interface {
	Split(ctx context.Context, path string, segmentSeconds float64, outDir string) ([]audio.Segment, error)
}

// chatAPI is the slice of the OpenAI client used for fusion.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Engine is the fusion transcription pipeline: split, transcribe pieces
// in parallel, fuse or align, and stitch the results back together.
type Engine struct {
	splitter audioSplitter
	words    wordTranscriber
	text     textTranscriber // nil disables the secondary model
	chat     chatAPI         // nil disables LLM fusion
	library  *prompts.Library

	fusionModel    string
	segmentSeconds float64
	maxParallel    int
	log            zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSplitter sets a custom audio splitter (for testing).
func WithSplitter(s audioSplitter) EngineOption {
	return func(e *Engine) { e.splitter = s }
}

// WithTextTranscriber enables the secondary text model.
func WithTextTranscriber(t textTranscriber) EngineOption {
	return func(e *Engine) { e.text = t }
}

// WithFusion enables LLM fusion using the given chat client and model.
func WithFusion(c chatAPI, model string) EngineOption {
	return func(e *Engine) {
		e.chat = c
		e.fusionModel = model
	}
}

// WithSegmentSeconds sets the split piece length.
func WithSegmentSeconds(seconds float64) EngineOption {
	return func(e *Engine) {
		if seconds > 0 {
			e.segmentSeconds = seconds
		}
	}
}

// WithMaxParallel bounds concurrent piece transcriptions.
func WithMaxParallel(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates an Engine around the word transcriber; everything
// else is optional.
func NewEngine(words wordTranscriber, library *prompts.Library, opts ...EngineOption) *Engine {
	e := &Engine{
		splitter:       audio.NewProcessor(),
		words:          words,
		library:        library,
		segmentSeconds: DefaultSegmentSeconds,
		maxParallel:    DefaultMaxParallel,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// pieceResult holds one transcribed piece, segments already shifted to
// absolute time.
type pieceResult struct {
	language string
	segments []transcript.Segment
}

// Transcribe runs the full pipeline over one audio file.
func (e *Engine) Transcribe(ctx context.Context, audioPath, language string) (*transcript.Transcript, error) {
	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	pieceDir := filepath.Join(filepath.Dir(audioPath), stem+"_pieces")

	pieces, err := e.splitter.Split(ctx, audioPath, e.segmentSeconds, pieceDir)
	if err != nil {
		return nil, fmt.Errorf("split audio: %w", err)
	}
	if len(pieces) > 1 {
		defer func() { _ = os.RemoveAll(pieceDir) }()
	}
	e.log.Debug().Int("pieces", len(pieces)).Str("file", audioPath).Msg("transcribing")

	results := make([]pieceResult, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, e.maxParallel)
	for i, piece := range pieces {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			res, err := e.transcribePiece(gctx, piece, language)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return stitch(results), nil
}

// transcribePiece transcribes one piece: word and text models run
// concurrently, then fusion aligns them, falling back to positional
// alignment when fusion is unavailable or fails.
func (e *Engine) transcribePiece(ctx context.Context, piece audio.Segment, language string) (pieceResult, error) {
	var wordRes *WordResult
	var cleanText string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := e.words.Transcribe(gctx, piece.Path, language)
		if err != nil {
			return err
		}
		wordRes = res
		return nil
	})
	if e.text != nil {
		g.Go(func() error {
			text, err := e.text.Transcribe(gctx, piece.Path, language)
			if err != nil {
				return err
			}
			cleanText = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pieceResult{}, err
	}

	// Without a secondary model there is no clean text; synthesise it
	// from the word timestamps so fusion sees the same inputs either way.
	text := cleanText
	if text == "" {
		text = joinWords(wordRes.Words)
	}
	if text == "" {
		text = wordRes.Text
	}
	segments := e.alignPiece(ctx, wordRes, text, cleanText == "", piece.Offset)
	return pieceResult{language: wordRes.Language, segments: segments}, nil
}

// joinWords rebuilds a piece's text from its word timestamps.
func joinWords(words []transcript.Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if t := strings.TrimSpace(w.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// alignPiece picks the best available alignment for one piece. Fusion
// runs whenever a chat model is configured, in dual-model and
// single-model mode alike; wordsOnly marks pieces whose text was
// synthesised from the word timestamps.
func (e *Engine) alignPiece(ctx context.Context, wordRes *WordResult, text string, wordsOnly bool, offset float64) []transcript.Segment {
	if e.chat != nil && text != "" && len(wordRes.Words) > 0 {
		segs, err := e.fuse(ctx, text, wordRes.Words, offset)
		if err == nil {
			return segs
		}
		e.log.Warn().Err(err).Msg("fusion failed, using fallback alignment")
	}

	if wordsOnly && len(wordRes.Segments) > 0 {
		segs := make([]transcript.Segment, len(wordRes.Segments))
		for i, s := range wordRes.Segments {
			segs[i] = transcript.Segment{
				Text:  strings.TrimSpace(s.Text),
				Start: s.Start + offset,
				End:   s.End + offset,
			}
		}
		return segs
	}
	return alignByPosition(text, wordRes.Words, offset)
}

// fusionReply is the JSON shape the fusion prompt demands.
type fusionReply struct {
	Segments []struct {
		Text         string  `json:"text"`
		StartSeconds float64 `json:"start_seconds"`
		EndSeconds   float64 `json:"end_seconds"`
	} `json:"segments"`
}

// fuse asks the chat model to align clean text to word timestamps.
func (e *Engine) fuse(ctx context.Context, text string, words []transcript.Word, offset float64) ([]transcript.Segment, error) {
	var wordLines strings.Builder
	for _, w := range words {
		fmt.Fprintf(&wordLines, "%s [%.2f-%.2f]\n", w.Text, w.Start, w.End)
	}

	prompt, err := e.library.Render(prompts.Fusion, map[string]string{
		"text":  text,
		"words": wordLines.String(),
	})
	if err != nil {
		return nil, err
	}

	resp, err := apierr.Do(ctx, func() (openai.ChatCompletionResponse, error) {
		return e.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: e.fusionModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			// Smallest nonzero value: a literal 0 would be dropped by
			// omitempty and the provider default applied instead.
			Temperature: math.SmallestNonzeroFloat32,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("fusion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("fusion returned no choices: %w", ErrTranscription)
	}

	var reply fusionReply
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &reply); err != nil {
		return nil, fmt.Errorf("parse fusion reply: %w", ErrTranscription)
	}
	if len(reply.Segments) == 0 {
		return nil, fmt.Errorf("fusion returned no segments: %w", ErrTranscription)
	}

	segments := make([]transcript.Segment, len(reply.Segments))
	for i, s := range reply.Segments {
		segments[i] = transcript.Segment{
			Text:  strings.TrimSpace(s.Text),
			Start: s.StartSeconds + offset,
			End:   s.EndSeconds + offset,
		}
	}
	return segments, nil
}

// stitch merges per-piece results into one transcript. The full text is
// the join of the segment texts, so it always matches what export and
// retrieval see.
func stitch(results []pieceResult) *transcript.Transcript {
	out := &transcript.Transcript{}
	for _, res := range results {
		if out.Language == "" {
			out.Language = res.language
		}
		out.Segments = append(out.Segments, res.segments...)
	}
	texts := make([]string, 0, len(out.Segments))
	for _, seg := range out.Segments {
		if seg.Text != "" {
			texts = append(texts, seg.Text)
		}
		if seg.End > out.Duration {
			out.Duration = seg.End
		}
	}
	out.Text = strings.Join(texts, " ")
	return out
}
