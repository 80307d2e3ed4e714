package chunk

import (
	"context"

	"github.com/alnah/lytt/internal/transcript"
)

// Temporal chunks by fixed time windows. A segment contributes its text
// to every window it overlaps, so a straddling segment appears in both
// neighbouring chunks. Window chunks carry no section title.
type Temporal struct {
	cfg Config
}

var _ Chunker = (*Temporal)(nil)

// NewTemporal creates a temporal chunker.
func NewTemporal(cfg Config) *Temporal {
	return &Temporal{cfg: cfg.normalize()}
}

func (t *Temporal) Chunk(_ context.Context, mediaID string, tr *transcript.Transcript) ([]Chunk, error) {
	if len(tr.Segments) == 0 {
		return nil, nil
	}

	total := tr.Segments[len(tr.Segments)-1].End
	if total < t.cfg.MinSeconds {
		return singleChunk(mediaID, tr), nil
	}

	window := t.cfg.TargetSeconds
	var chunks []Chunk
	for start := 0.0; start < total; start += window {
		end := min(start+window, total)
		text := tr.TextBetween(start, end)
		if text == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			MediaID: mediaID,
			Text:    text,
			Start:   start,
			End:     end,
			Index:   len(chunks),
		})
	}
	return chunks, nil
}
