// Package transcript defines the time-aligned transcript model shared by
// the transcription, chunking and retrieval layers.
package transcript

import (
	"fmt"
	"strings"
)

// Word is a single word with provider-reported timing.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is a contiguous span of transcript text.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Transcript is the full result of transcribing one piece of media.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration"`
}

// TextBetween joins the text of all segments overlapping [start, end).
func (t *Transcript) TextBetween(start, end float64) string {
	var parts []string
	for _, seg := range t.Segments {
		if seg.Start < end && seg.End > start {
			parts = append(parts, strings.TrimSpace(seg.Text))
		}
	}
	return strings.Join(parts, " ")
}

// FormatTimestamp renders seconds as MM:SS, or H:MM:SS above one hour.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// WithTimestamps renders the transcript with a [MM:SS] prefix per segment,
// the shape the chunking and fusion prompts expect.
func (t *Transcript) WithTimestamps() string {
	var b strings.Builder
	for _, seg := range t.Segments {
		fmt.Fprintf(&b, "[%s] %s\n", FormatTimestamp(seg.Start), strings.TrimSpace(seg.Text))
	}
	return b.String()
}
