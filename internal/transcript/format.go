package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ExportFormat selects an export encoding.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatSRT  ExportFormat = "srt"
	FormatVTT  ExportFormat = "vtt"
)

// ErrUnknownFormat indicates an unsupported export format name.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat parses a user-supplied format name.
func ParseFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "srt":
		return FormatSRT, nil
	case "vtt":
		return FormatVTT, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnknownFormat)
	}
}

// exportDoc is the JSON export shape.
type exportDoc struct {
	MediaID         string          `json:"media_id"`
	DurationSeconds float64         `json:"duration_seconds"`
	Segments        []exportSegment `json:"segments"`
}

type exportSegment struct {
	Text         string  `json:"text"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
}

// Export renders the transcript in the given format.
func (t *Transcript) Export(mediaID string, format ExportFormat) (string, error) {
	switch format {
	case FormatJSON:
		doc := exportDoc{
			MediaID:         mediaID,
			DurationSeconds: t.Duration,
			Segments:        make([]exportSegment, len(t.Segments)),
		}
		for i, seg := range t.Segments {
			doc.Segments[i] = exportSegment{
				Text:         strings.TrimSpace(seg.Text),
				StartSeconds: seg.Start,
				EndSeconds:   seg.End,
			}
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode transcript: %w", err)
		}
		return string(data), nil
	case FormatSRT:
		return t.exportSRT(), nil
	case FormatVTT:
		return t.exportVTT(), nil
	default:
		return "", fmt.Errorf("%q: %w", format, ErrUnknownFormat)
	}
}

// exportSRT renders SubRip cues: 1-indexed, HH:MM:SS,mmm timestamps.
func (t *Transcript) exportSRT() string {
	var b strings.Builder
	for i, seg := range t.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1,
			cueTimestamp(seg.Start, ","),
			cueTimestamp(seg.End, ","),
			strings.TrimSpace(seg.Text))
	}
	return b.String()
}

// exportVTT renders WebVTT: same cues as SRT but with a header and a
// '.' millisecond separator.
func (t *Transcript) exportVTT() string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, seg := range t.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1,
			cueTimestamp(seg.Start, "."),
			cueTimestamp(seg.End, "."),
			strings.TrimSpace(seg.Text))
	}
	return b.String()
}

func cueTimestamp(seconds float64, msSep string) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	ms := int(math.Round((seconds - float64(total)) * 1000.0))
	if ms >= 1000 {
		total++
		ms = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, msSep, ms)
}
