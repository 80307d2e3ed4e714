// Package audio acquires and prepares audio for transcription: downloading
// with yt-dlp, normalizing and splitting with ffmpeg, probing with ffprobe.
package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alnah/lytt/internal/tool"
)

// audioExtensions are checked, in order, when locating a downloaded file.
var audioExtensions = []string{"mp3", "opus", "m4a", "webm", "ogg"}

// Processor downloads, normalizes, splits and probes audio files.
type Processor struct {
	runner tool.Runner
	dirs   dirReader
	stats  fileStatter
}

// Option configures a Processor.
type Option func(*Processor)

// WithRunner sets a custom command runner (for testing).
func WithRunner(r tool.Runner) Option {
	return func(p *Processor) { p.runner = r }
}

// WithDirReader sets a custom directory reader (for testing).
func WithDirReader(d dirReader) Option {
	return func(p *Processor) { p.dirs = d }
}

// WithFileStatter sets a custom file statter (for testing).
func WithFileStatter(s fileStatter) Option {
	return func(p *Processor) { p.stats = s }
}

// NewProcessor creates a Processor with the given options.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		runner: tool.OSRunner{},
		dirs:   osDirReader{},
		stats:  osFileStatter{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extract downloads the best available audio for url into outDir as mp3,
// named after id. A file left over from a previous run is reused.
func (p *Processor) Extract(ctx context.Context, url, id, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}

	if existing, err := p.findAudioFile(outDir, id); err == nil {
		return existing, nil
	}

	template := filepath.Join(outDir, id+".%(ext)s")
	_, err := p.runner.Run(ctx, "yt-dlp",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--output", template,
		"--no-playlist",
		"--quiet",
		"--no-warnings",
		url,
	)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}

	return p.findAudioFile(outDir, id)
}

// findAudioFile locates a downloaded file: exact extension matches first,
// then any file sharing the id prefix.
func (p *Processor) findAudioFile(dir, id string) (string, error) {
	for _, ext := range audioExtensions {
		candidate := filepath.Join(dir, id+"."+ext)
		if _, err := p.stats.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	entries, err := p.dirs.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read audio dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), id+".") {
			return filepath.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("%s: %w", id, ErrNoAudioFile)
}

// Normalize re-encodes any media file to a clean mp3, dropping video streams.
func (p *Processor) Normalize(ctx context.Context, inPath, outPath string) error {
	_, err := p.runner.Run(ctx, "ffmpeg",
		"-i", inPath,
		"-vn",
		"-codec:a", "libmp3lame",
		"-qscale:a", "2",
		"-y",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("normalize audio: %w", err)
	}
	return nil
}

// Segment is one split piece of a longer recording.
type Segment struct {
	Path   string
	Offset float64 // start position within the original file, in seconds
}

// Split cuts the file into pieces of at most segmentSeconds. A file that
// already fits in one piece is returned as-is, without copying.
func (p *Processor) Split(ctx context.Context, path string, segmentSeconds float64, outDir string) ([]Segment, error) {
	duration, err := p.Duration(ctx, path)
	if err != nil {
		return nil, err
	}
	if duration <= segmentSeconds {
		return []Segment{{Path: path, Offset: 0}}, nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create split dir: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var segments []Segment
	for idx, offset := 0, 0.0; offset < duration; idx, offset = idx+1, offset+segmentSeconds {
		outPath := filepath.Join(outDir, fmt.Sprintf("%s_%04d.mp3", stem, idx))
		if err := p.cut(ctx, path, outPath, offset, segmentSeconds); err != nil {
			return nil, err
		}
		segments = append(segments, Segment{Path: outPath, Offset: offset})
	}
	return segments, nil
}

// cut extracts one window. Stream copy is tried first; some mp3 files
// refuse to cut on non-frame boundaries, so re-encoding is the fallback.
func (p *Processor) cut(ctx context.Context, inPath, outPath string, offset, length float64) error {
	copyArgs := []string{
		"-i", inPath,
		"-ss", formatSeconds(offset),
		"-t", formatSeconds(length),
		"-c", "copy",
		"-y",
		outPath,
	}
	if _, err := p.runner.Run(ctx, "ffmpeg", copyArgs...); err == nil {
		return nil
	}

	encodeArgs := []string{
		"-i", inPath,
		"-ss", formatSeconds(offset),
		"-t", formatSeconds(length),
		"-codec:a", "libmp3lame",
		"-qscale:a", "2",
		"-y",
		outPath,
	}
	if _, err := p.runner.Run(ctx, "ffmpeg", encodeArgs...); err != nil {
		return fmt.Errorf("split audio at %s: %w", formatSeconds(offset), err)
	}
	return nil
}

// ffprobeFormat mirrors the format object of ffprobe -show_format.
type ffprobeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the length of the file in seconds via ffprobe.
func (p *Processor) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.runner.Run(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}

	var probe ffprobeFormat
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", ErrProbe)
	}
	seconds, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, ErrProbe)
	}
	return seconds, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
