package media

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/alnah/lytt/internal/audio"
	"github.com/alnah/lytt/internal/tool"
)

// videoIDPatterns extract an 11-character video id from the URL shapes
// YouTube serves.
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`(?:youtu\.be/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`(?:youtube\.com/embed/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`(?:youtube\.com/v/)([a-zA-Z0-9_-]{11})`),
}

// bareVideoID matches a raw video id passed without any URL around it.
var bareVideoID = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// YouTube resolves YouTube URLs and bare video ids via yt-dlp.
type YouTube struct {
	runner tool.Runner
	proc   *audio.Processor
}

var _ Source = (*YouTube)(nil)

// NewYouTube creates a YouTube source. A nil runner falls back to the
// real yt-dlp binary.
func NewYouTube(runner tool.Runner, proc *audio.Processor) *YouTube {
	if runner == nil {
		runner = tool.OSRunner{}
	}
	if proc == nil {
		proc = audio.NewProcessor()
	}
	return &YouTube{runner: runner, proc: proc}
}

// ExtractVideoID pulls the video id out of a URL or bare id string.
func ExtractVideoID(input string) (string, bool) {
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(input); m != nil {
			return m[1], true
		}
	}
	if bareVideoID.MatchString(input) {
		return input, true
	}
	return "", false
}

func (y *YouTube) MediaID(input string) (string, error) {
	id, ok := ExtractVideoID(input)
	if !ok {
		return "", fmt.Errorf("cannot extract video id from %q: %w", input, ErrInvalidInput)
	}
	return id, nil
}

func (y *YouTube) CanHandle(input string) bool {
	if _, ok := ExtractVideoID(input); ok {
		return true
	}
	// Playlists and channels are handled for listing even though a
	// single video id cannot be extracted from them.
	lower := strings.ToLower(input)
	if !strings.Contains(lower, "youtube.com") {
		return false
	}
	return strings.Contains(lower, "playlist") ||
		strings.Contains(lower, "/channel/") ||
		strings.Contains(lower, "/@")
}

// ytMetadata is the subset of yt-dlp --dump-json output we use.
type ytMetadata struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	URL      string  `json:"webpage_url"`
}

func (y *YouTube) Resolve(ctx context.Context, input string) (Ref, error) {
	id, ok := ExtractVideoID(input)
	if !ok {
		return Ref{}, fmt.Errorf("cannot extract video id from %q: %w", input, ErrInvalidInput)
	}
	url := "https://www.youtube.com/watch?v=" + id

	out, err := y.runner.Run(ctx, "yt-dlp", "--dump-json", "--no-playlist", url)
	if err != nil {
		return Ref{}, fmt.Errorf("fetch video metadata: %w", err)
	}

	var meta ytMetadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return Ref{}, fmt.Errorf("parse video metadata: %w", ErrSource)
	}

	title := meta.Title
	if title == "" {
		title = id
	}
	return Ref{
		ID:       id,
		Title:    title,
		URL:      url,
		Kind:     KindYouTube,
		Duration: meta.Duration,
	}, nil
}

func (y *YouTube) FetchAudio(ctx context.Context, ref Ref, dir string) (string, error) {
	path, err := y.proc.Extract(ctx, ref.URL, ref.ID, dir)
	if err != nil {
		return "", fmt.Errorf("fetch audio for %s: %w", ref.ID, err)
	}
	return path, nil
}

// ListPlaylist resolves every entry of a playlist or channel URL without
// downloading anything.
func (y *YouTube) ListPlaylist(ctx context.Context, url string) ([]Ref, error) {
	out, err := y.runner.Run(ctx, "yt-dlp", "--flat-playlist", "--dump-json", url)
	if err != nil {
		return nil, fmt.Errorf("list playlist: %w", err)
	}

	var refs []Ref
	dec := json.NewDecoder(strings.NewReader(string(out)))
	for dec.More() {
		var meta ytMetadata
		if err := dec.Decode(&meta); err != nil {
			return nil, fmt.Errorf("parse playlist entry: %w", ErrSource)
		}
		if meta.ID == "" {
			continue
		}
		title := meta.Title
		if title == "" {
			title = meta.ID
		}
		refs = append(refs, Ref{
			ID:       meta.ID,
			Title:    title,
			URL:      "https://www.youtube.com/watch?v=" + meta.ID,
			Kind:     KindYouTube,
			Duration: meta.Duration,
		})
	}
	return refs, nil
}
