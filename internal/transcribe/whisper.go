package transcribe

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/lytt/internal/apierr"
	"github.com/alnah/lytt/internal/transcript"
)

// audioAPI is the slice of the OpenAI client the transcribers use.
type audioAPI interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// WordResult is a single-file transcription with word-level timing.
type WordResult struct {
	Text     string
	Language string
	Duration float64
	Words    []transcript.Word
	Segments []transcript.Segment
}

// WordTranscriber calls the speech model requesting word timestamps.
type WordTranscriber struct {
	client audioAPI
	model  string
}

// NewWordTranscriber creates a WordTranscriber for the given model.
func NewWordTranscriber(client audioAPI, model string) *WordTranscriber {
	return &WordTranscriber{client: client, model: model}
}

// Transcribe runs one audio file through the speech model. Providers
// that return no word granularity get uniform per-segment approximation
// so downstream alignment always has words to work with.
func (w *WordTranscriber) Transcribe(ctx context.Context, audioPath, language string) (*WordResult, error) {
	resp, err := apierr.Do(ctx, func() (openai.AudioResponse, error) {
		return w.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    w.model,
			FilePath: audioPath,
			Format:   openai.AudioResponseFormatVerboseJSON,
			Language: language,
			TimestampGranularities: []openai.TranscriptionTimestampGranularity{
				openai.TranscriptionTimestampGranularityWord,
				openai.TranscriptionTimestampGranularitySegment,
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", audioPath, err)
	}

	result := &WordResult{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: resp.Duration,
	}
	for _, seg := range resp.Segments {
		result.Segments = append(result.Segments, transcript.Segment{
			Text:  seg.Text,
			Start: seg.Start,
			End:   seg.End,
		})
	}
	for _, word := range resp.Words {
		result.Words = append(result.Words, transcript.Word{
			Text:  word.Word,
			Start: word.Start,
			End:   word.End,
		})
	}
	if len(result.Words) == 0 {
		result.Words = approximateWords(result.Segments)
	}
	return result, nil
}

// approximateWords distributes each segment's span uniformly over its
// whitespace tokens.
func approximateWords(segments []transcript.Segment) []transcript.Word {
	var words []transcript.Word
	for _, seg := range segments {
		tokens := strings.Fields(seg.Text)
		if len(tokens) == 0 {
			continue
		}
		step := (seg.End - seg.Start) / float64(len(tokens))
		for i, token := range tokens {
			start := seg.Start + float64(i)*step
			words = append(words, transcript.Word{
				Text:  token,
				Start: start,
				End:   start + step,
			})
		}
	}
	return words
}

// TextTranscriber calls a secondary speech model for text quality only;
// its timing is discarded and re-derived during fusion.
type TextTranscriber struct {
	client audioAPI
	model  string
}

// NewTextTranscriber creates a TextTranscriber for the given model.
func NewTextTranscriber(client audioAPI, model string) *TextTranscriber {
	return &TextTranscriber{client: client, model: model}
}

// Transcribe returns the plain text of one audio file.
func (t *TextTranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	resp, err := apierr.Do(ctx, func() (openai.AudioResponse, error) {
		return t.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    t.model,
			FilePath: audioPath,
			Format:   openai.AudioResponseFormatJSON,
			Language: language,
		})
	})
	if err != nil {
		return "", fmt.Errorf("text transcribe %s: %w", audioPath, err)
	}
	return strings.TrimSpace(resp.Text), nil
}
