package transcribe

import (
	"strings"

	"github.com/alnah/lytt/internal/transcript"
)

// alignByPosition distributes clean text over word timestamps without any
// model call. Sentences consume words by position: a sentence with N
// whitespace tokens takes the next N timed words, and its time range is
// the span those words cover. This is the deterministic fallback when
// fusion is unavailable or fails.
func alignByPosition(text string, words []transcript.Word, offset float64) []transcript.Segment {
	sentences := splitSentences(text)

	if len(sentences) == 0 || len(words) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		end := 10.0
		if len(words) > 0 {
			end = words[len(words)-1].End
		}
		return []transcript.Segment{{Text: trimmed, Start: offset, End: offset + end}}
	}

	segments := make([]transcript.Segment, 0, len(sentences))
	next := 0
	for _, sentence := range sentences {
		tokens := len(strings.Fields(sentence))
		if tokens == 0 {
			continue
		}
		if next >= len(words) {
			// Clean text has more sentences than timed words; pin the
			// remainder to the last word.
			next = len(words) - 1
		}
		last := next + tokens - 1
		if last >= len(words) {
			last = len(words) - 1
		}

		segments = append(segments, transcript.Segment{
			Text:  ensureTerminated(sentence),
			Start: offset + words[next].Start,
			End:   offset + words[last].End,
		})
		next += tokens
	}

	if len(segments) == 0 {
		return nil
	}

	// When token counts drift, the final sentence can end well before the
	// last recognized word; stretch it to cover the real speech.
	lastWordEnd := offset + words[len(words)-1].End
	if lastWordEnd-segments[len(segments)-1].End > 1.0 {
		segments[len(segments)-1].End = lastWordEnd
	}
	return segments
}

// splitSentences splits text on sentence terminators, keeping the
// terminator with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func ensureTerminated(sentence string) string {
	s := strings.TrimSpace(sentence)
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}
