// Package chunk breaks transcripts into passages sized for embedding:
// fixed time windows, or topic sections proposed by an LLM.
package chunk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alnah/lytt/internal/transcript"
)

// ErrChunking indicates a chunking strategy failed outright.
var ErrChunking = errors.New("chunking failed")

// ErrUnknownStrategy indicates an unrecognized strategy name.
var ErrUnknownStrategy = errors.New("unknown chunking strategy")

// Chunk is one indexed passage of a transcript.
type Chunk struct {
	MediaID string  `json:"media_id"`
	Title   string  `json:"title"`
	Text    string  `json:"text"`
	Start   float64 `json:"start_seconds"`
	End     float64 `json:"end_seconds"`
	Index   int     `json:"index"`
}

// Config bounds chunk durations, in seconds.
type Config struct {
	TargetSeconds float64
	MinSeconds    float64
	MaxSeconds    float64
}

// DefaultConfig returns the standard chunk sizing.
func DefaultConfig() Config {
	return Config{TargetSeconds: 180, MinSeconds: 60, MaxSeconds: 600}
}

// normalize fills zero or negative fields with defaults.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.TargetSeconds <= 0 {
		c.TargetSeconds = def.TargetSeconds
	}
	if c.MinSeconds <= 0 {
		c.MinSeconds = def.MinSeconds
	}
	if c.MaxSeconds <= 0 {
		c.MaxSeconds = def.MaxSeconds
	}
	return c
}

// Strategy names a chunking approach.
type Strategy string

const (
	StrategyTemporal Strategy = "temporal"
	StrategySemantic Strategy = "semantic"
	// StrategyHybrid is semantic chunking with temporal fallback. The
	// semantic chunker already falls back on model failure, so the two
	// construct identically; the name survives for CLI compatibility.
	StrategyHybrid Strategy = "hybrid"
)

// ParseStrategy parses a user-supplied strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "temporal", "":
		return StrategyTemporal, nil
	case "semantic":
		return StrategySemantic, nil
	case "hybrid":
		return StrategyHybrid, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnknownStrategy)
	}
}

// Chunker turns a transcript into chunks for one piece of media.
type Chunker interface {
	Chunk(ctx context.Context, mediaID string, t *transcript.Transcript) ([]Chunk, error)
}

// singleChunk covers the whole transcript with one chunk, used when the
// material is too short to split.
func singleChunk(mediaID string, t *transcript.Transcript) []Chunk {
	end := t.Duration
	if len(t.Segments) > 0 {
		end = t.Segments[len(t.Segments)-1].End
	}
	return []Chunk{{
		MediaID: mediaID,
		Title:   fmt.Sprintf("Full content (%s - %s)", transcript.FormatTimestamp(0), transcript.FormatTimestamp(end)),
		Text:    t.TextBetween(0, end+1),
		Start:   0,
		End:     end,
		Index:   0,
	}}
}
