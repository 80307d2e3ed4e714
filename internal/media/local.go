package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/lytt/internal/audio"
)

// LocalIDPrefix marks media ids that came from the local filesystem.
// Retrieval uses it to suppress deep links for local media.
const LocalIDPrefix = "local_"

var localAudioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".flac": true,
	".ogg": true, ".opus": true, ".aac": true, ".wma": true,
}

var localVideoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".mov": true, ".avi": true,
	".webm": true, ".flv": true, ".wmv": true, ".mpg": true, ".mpeg": true,
}

// Local resolves audio and video files on the local filesystem. Video
// files get their audio track extracted to mp3 during FetchAudio.
type Local struct {
	proc *audio.Processor
}

var _ Source = (*Local)(nil)

// NewLocal creates a Local source. A nil processor falls back to the
// real ffmpeg/ffprobe binaries.
func NewLocal(proc *audio.Processor) *Local {
	if proc == nil {
		proc = audio.NewProcessor()
	}
	return &Local{proc: proc}
}

func (l *Local) CanHandle(input string) bool {
	ext := strings.ToLower(filepath.Ext(input))
	if !localAudioExtensions[ext] && !localVideoExtensions[ext] {
		return false
	}
	info, err := os.Stat(input)
	return err == nil && !info.IsDir()
}

// LocalID derives a stable media id from a file path: the canonical
// absolute path with separators and spaces flattened to underscores.
func LocalID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	flat := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(abs)
	return LocalIDPrefix + strings.Trim(flat, "_")
}

func (l *Local) MediaID(input string) (string, error) {
	return LocalID(input), nil
}

func (l *Local) Resolve(ctx context.Context, input string) (Ref, error) {
	info, err := os.Stat(input)
	if err != nil {
		return Ref{}, fmt.Errorf("%s: %w", input, ErrInvalidInput)
	}
	if info.IsDir() {
		return Ref{}, fmt.Errorf("%s is a directory: %w", input, ErrInvalidInput)
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return Ref{}, fmt.Errorf("resolve path %s: %w", input, ErrSource)
	}

	duration, err := l.proc.Duration(ctx, abs)
	if err != nil {
		return Ref{}, fmt.Errorf("probe %s: %w", input, err)
	}

	stem := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	return Ref{
		ID:       LocalID(abs),
		Title:    stem,
		URL:      abs,
		Kind:     KindLocal,
		Duration: duration,
	}, nil
}

func (l *Local) FetchAudio(ctx context.Context, ref Ref, dir string) (string, error) {
	ext := strings.ToLower(filepath.Ext(ref.URL))
	if localAudioExtensions[ext] {
		return ref.URL, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	outPath := filepath.Join(dir, ref.ID+".mp3")
	if _, err := os.Stat(outPath); err == nil {
		return outPath, nil
	}
	if err := l.proc.Normalize(ctx, ref.URL, outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// ListDir resolves every supported media file directly under path.
func (l *Local) ListDir(ctx context.Context, path string) ([]Ref, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", path, ErrInvalidInput)
	}

	var refs []Ref
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(path, entry.Name())
		if !l.CanHandle(full) {
			continue
		}
		ref, err := l.Resolve(ctx, full)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
