// Package orchestrator drives the full indexing pipeline: source
// resolution, audio acquisition, transcription, chunking, embedding and
// the final store write.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alnah/lytt/internal/chunk"
	"github.com/alnah/lytt/internal/media"
	"github.com/alnah/lytt/internal/store"
	"github.com/alnah/lytt/internal/transcript"
)

// Transcriber turns an audio file into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (*transcript.Transcript, error)
}

// Embedder embeds chunk texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Storage is the slice of the store the orchestrator needs.
type Storage interface {
	IsIndexed(ctx context.Context, mediaID string) (bool, error)
	ReplaceMedia(ctx context.Context, mediaID string, docs []store.Document) error
	StoreTranscript(ctx context.Context, t store.StoredTranscript) error
	GetTranscript(ctx context.Context, mediaID string) (store.StoredTranscript, error)
	ListTranscripts(ctx context.Context) ([]store.StoredTranscript, error)
}

// ChunkerFactory builds the chunker for a strategy.
type ChunkerFactory func(strategy chunk.Strategy) chunk.Chunker

// Config carries the orchestrator's tunables.
type Config struct {
	AudioDir           string
	Language           string
	MaxDurationSeconds float64 // 0 disables the limit
	KeepAudio          bool
	DefaultStrategy    chunk.Strategy
}

// Result reports what one Process or Rechunk call did.
type Result struct {
	MediaID       string `json:"media_id"`
	Title         string `json:"title"`
	ChunksIndexed int    `json:"chunks_indexed"`
	Skipped       bool   `json:"skipped"`
}

// ProcessOptions modify one Process call.
type ProcessOptions struct {
	Force    bool
	Strategy chunk.Strategy // empty uses the configured default
	Language string         // empty uses the configured language
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	detector    *media.Detector
	transcriber Transcriber
	embedder    Embedder
	storage     Storage
	chunkerFor  ChunkerFactory
	cfg         Config
	log         zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// New creates an Orchestrator.
func New(detector *media.Detector, transcriber Transcriber, embedder Embedder,
	storage Storage, chunkerFor ChunkerFactory, cfg Config, opts ...Option) *Orchestrator {
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = chunk.StrategyTemporal
	}
	o := &Orchestrator{
		detector:    detector,
		transcriber: transcriber,
		embedder:    embedder,
		storage:     storage,
		chunkerFor:  chunkerFor,
		cfg:         cfg,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process runs the full pipeline for one input.
func (o *Orchestrator) Process(ctx context.Context, input string, opts ProcessOptions) (Result, error) {
	src, err := o.detector.Detect(input)
	if err != nil {
		return Result{}, err
	}
	mediaID, err := src.MediaID(input)
	if err != nil {
		return Result{}, err
	}

	if !opts.Force {
		indexed, err := o.storage.IsIndexed(ctx, mediaID)
		if err != nil {
			return Result{}, err
		}
		if indexed {
			o.log.Info().Str("media_id", mediaID).Msg("already indexed, skipping")
			return Result{MediaID: mediaID, Title: "Already indexed", Skipped: true}, nil
		}
	}

	ref, err := src.Resolve(ctx, input)
	if err != nil {
		return Result{}, err
	}
	if o.cfg.MaxDurationSeconds > 0 && ref.Duration > o.cfg.MaxDurationSeconds {
		return Result{}, fmt.Errorf("media %s is %.0fs, longer than the %.0fs limit: %w",
			ref.ID, ref.Duration, o.cfg.MaxDurationSeconds, media.ErrInvalidInput)
	}

	audioPath, err := src.FetchAudio(ctx, ref, o.cfg.AudioDir)
	if err != nil {
		return Result{}, err
	}
	defer o.cleanupAudio(audioPath)

	language := opts.Language
	if language == "" {
		language = o.cfg.Language
	}
	o.log.Info().Str("media_id", ref.ID).Str("title", ref.Title).Msg("transcribing")
	tr, err := o.transcriber.Transcribe(ctx, audioPath, language)
	if err != nil {
		return Result{}, err
	}

	o.saveTranscript(ctx, ref, tr)

	n, err := o.index(ctx, ref, tr, opts.Strategy)
	if err != nil {
		return Result{}, err
	}

	return Result{MediaID: ref.ID, Title: ref.Title, ChunksIndexed: n}, nil
}

// Rechunk rebuilds chunks and embeddings from the stored transcript,
// without re-transcribing or touching the network for audio.
func (o *Orchestrator) Rechunk(ctx context.Context, mediaID string, strategy chunk.Strategy) (Result, error) {
	stored, err := o.storage.GetTranscript(ctx, mediaID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, fmt.Errorf("no stored transcript for %s: %w", mediaID, media.ErrInvalidInput)
		}
		return Result{}, err
	}

	var tr transcript.Transcript
	if err := json.Unmarshal([]byte(stored.TranscriptJSON), &tr); err != nil {
		return Result{}, fmt.Errorf("corrupt stored transcript for %s: %w", mediaID, media.ErrInvalidInput)
	}

	ref := media.Ref{ID: stored.MediaID, Title: stored.MediaTitle, Duration: stored.DurationSeconds}
	n, err := o.index(ctx, ref, &tr, strategy)
	if err != nil {
		return Result{}, err
	}
	return Result{MediaID: ref.ID, Title: ref.Title, ChunksIndexed: n}, nil
}

// ListRechunkable enumerates media whose transcript is stored.
func (o *Orchestrator) ListRechunkable(ctx context.Context) ([]store.StoredTranscript, error) {
	return o.storage.ListTranscripts(ctx)
}

// index chunks, embeds and atomically replaces the media's documents.
func (o *Orchestrator) index(ctx context.Context, ref media.Ref, tr *transcript.Transcript, strategy chunk.Strategy) (int, error) {
	if strategy == "" {
		strategy = o.cfg.DefaultStrategy
	}
	chunks, err := o.chunkerFor(strategy).Chunk(ctx, ref.ID, tr)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vecs) != len(chunks) {
		return 0, fmt.Errorf("got %d embeddings for %d chunks: %w", len(vecs), len(chunks), store.ErrStore)
	}

	docs := make([]store.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = store.Document{
			MediaID:      c.MediaID,
			MediaTitle:   ref.Title,
			SectionTitle: c.Title,
			Content:      c.Text,
			StartSeconds: c.Start,
			EndSeconds:   c.End,
			Embedding:    vecs[i],
			ChunkOrder:   c.Index,
		}
	}
	if err := o.storage.ReplaceMedia(ctx, ref.ID, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// saveTranscript persists the transcript for later re-chunking. Failure
// costs a warning, never the pipeline.
func (o *Orchestrator) saveTranscript(ctx context.Context, ref media.Ref, tr *transcript.Transcript) {
	data, err := json.Marshal(tr)
	if err != nil {
		o.log.Warn().Err(err).Str("media_id", ref.ID).Msg("cannot encode transcript")
		return
	}
	err = o.storage.StoreTranscript(ctx, store.StoredTranscript{
		MediaID:         ref.ID,
		MediaTitle:      ref.Title,
		TranscriptJSON:  string(data),
		DurationSeconds: tr.Duration,
	})
	if err != nil {
		o.log.Warn().Err(err).Str("media_id", ref.ID).Msg("cannot store transcript")
	}
}

// cleanupAudio removes downloaded audio unless the user keeps a cache.
// Files outside the audio dir belong to the user and are never touched.
func (o *Orchestrator) cleanupAudio(path string) {
	if o.cfg.KeepAudio || path == "" {
		return
	}
	audioDir, err := filepath.Abs(o.cfg.AudioDir)
	if err != nil {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	if !strings.HasPrefix(abs, audioDir+string(filepath.Separator)) {
		return
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		o.log.Warn().Err(err).Str("path", abs).Msg("cannot remove audio file")
	}
}
