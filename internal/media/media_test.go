package media

// Notes:
// - yt-dlp is faked through the tool.Runner interface; local sources run
//   against real temp files so CanHandle's stat check is exercised.

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alnah/lytt/internal/audio"
)

type fakeRunner struct {
	output []byte
	err    error
	calls  [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

// ---------------------------------------------------------------------------
// TestExtractVideoID
// ---------------------------------------------------------------------------

func TestExtractVideoID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"watch url with params", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", true},
		{"short url", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"embed url", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"v url", "https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"bare id", "dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"id with underscore and dash", "a_b-c_d-e_f", "a_b-c_d-e_f", true},
		{"too short", "abc123", "", false},
		{"too long bare string", "thisistoolongforanid", "", false},
		{"unrelated url", "https://example.com/watch?v=dQw4w9WgXcQ", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := ExtractVideoID(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ExtractVideoID(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// YouTube
// ---------------------------------------------------------------------------

func TestYouTubeCanHandle(t *testing.T) {
	t.Parallel()

	yt := NewYouTube(&fakeRunner{}, audio.NewProcessor())

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"video url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"bare id", "dQw4w9WgXcQ", true},
		{"playlist url", "https://www.youtube.com/playlist?list=PLx", true},
		{"channel url", "https://www.youtube.com/channel/UCx", true},
		{"handle url", "https://www.youtube.com/@somecreator", true},
		{"local path", "/tmp/talk.mp3", false},
		{"random url", "https://example.com/video", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := yt.CanHandle(tt.input); got != tt.want {
				t.Errorf("CanHandle(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestYouTubeMediaID(t *testing.T) {
	t.Parallel()

	yt := NewYouTube(&fakeRunner{}, audio.NewProcessor())

	id, err := yt.MediaID("https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("MediaID() error = %v", err)
	}
	if id != "dQw4w9WgXcQ" {
		t.Errorf("MediaID() = %q", id)
	}

	if _, err := yt.MediaID("not a video"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestYouTubeResolve(t *testing.T) {
	t.Parallel()

	t.Run("parses yt-dlp metadata", func(t *testing.T) {
		t.Parallel()

		runner := &fakeRunner{output: []byte(`{"id":"dQw4w9WgXcQ","title":"A Talk","duration":212.5,"webpage_url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)}
		yt := NewYouTube(runner, audio.NewProcessor())

		ref, err := yt.Resolve(context.Background(), "dQw4w9WgXcQ")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if ref.ID != "dQw4w9WgXcQ" || ref.Title != "A Talk" || ref.Duration != 212.5 || ref.Kind != KindYouTube {
			t.Errorf("ref = %+v", ref)
		}
		if len(runner.calls) != 1 || runner.calls[0][0] != "yt-dlp" {
			t.Errorf("calls = %v, want one yt-dlp invocation", runner.calls)
		}
	})

	t.Run("missing title falls back to the id", func(t *testing.T) {
		t.Parallel()

		runner := &fakeRunner{output: []byte(`{"id":"dQw4w9WgXcQ","duration":10}`)}
		ref, err := NewYouTube(runner, audio.NewProcessor()).Resolve(context.Background(), "dQw4w9WgXcQ")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if ref.Title != "dQw4w9WgXcQ" {
			t.Errorf("Title = %q, want the id", ref.Title)
		}
	})

	t.Run("garbage metadata is a source error", func(t *testing.T) {
		t.Parallel()

		runner := &fakeRunner{output: []byte("not json")}
		_, err := NewYouTube(runner, audio.NewProcessor()).Resolve(context.Background(), "dQw4w9WgXcQ")
		if !errors.Is(err, ErrSource) {
			t.Errorf("error = %v, want ErrSource", err)
		}
	})
}

func TestYouTubeListPlaylist(t *testing.T) {
	t.Parallel()

	// yt-dlp emits one JSON object per line in flat-playlist mode.
	runner := &fakeRunner{output: []byte(
		`{"id":"aaaaaaaaaaa","title":"First","duration":60}` + "\n" +
			`{"id":"bbbbbbbbbbb","duration":120}` + "\n" +
			`{"title":"no id, skipped"}` + "\n",
	)}
	refs, err := NewYouTube(runner, audio.NewProcessor()).ListPlaylist(context.Background(), "https://www.youtube.com/playlist?list=PLx")
	if err != nil {
		t.Fatalf("ListPlaylist() error = %v", err)
	}

	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2: %+v", len(refs), refs)
	}
	if refs[0].Title != "First" || refs[0].URL != "https://www.youtube.com/watch?v=aaaaaaaaaaa" {
		t.Errorf("refs[0] = %+v", refs[0])
	}
	if refs[1].Title != "bbbbbbbbbbb" {
		t.Errorf("refs[1].Title = %q, want id fallback", refs[1].Title)
	}
}

// ---------------------------------------------------------------------------
// Local
// ---------------------------------------------------------------------------

func TestLocalCanHandle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mp3 := filepath.Join(dir, "talk.mp3")
	if err := os.WriteFile(mp3, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	mp4 := filepath.Join(dir, "video.MP4")
	if err := os.WriteFile(mp4, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLocal(audio.NewProcessor())

	if !l.CanHandle(mp3) {
		t.Error("existing mp3 should be handled")
	}
	if !l.CanHandle(mp4) {
		t.Error("extension matching must be case-insensitive")
	}
	if l.CanHandle(filepath.Join(dir, "missing.mp3")) {
		t.Error("missing file must not be handled")
	}
	if l.CanHandle(filepath.Join(dir, "notes.txt")) {
		t.Error("unsupported extension must not be handled")
	}
	if l.CanHandle(dir) {
		t.Error("directories must not be handled")
	}
}

func TestLocalID(t *testing.T) {
	t.Parallel()

	id := LocalID("/home/user/my talks/episode 1.mp3")
	if !strings.HasPrefix(id, LocalIDPrefix) {
		t.Errorf("id = %q, want %q prefix", id, LocalIDPrefix)
	}
	if strings.ContainsAny(strings.TrimPrefix(id, LocalIDPrefix), "/ ") {
		t.Errorf("id = %q, separators and spaces must be flattened", id)
	}
	if id != LocalID("/home/user/my talks/episode 1.mp3") {
		t.Error("LocalID must be stable for the same path")
	}
}

func TestLocalFetchAudioPassesThroughAudioFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mp3 := filepath.Join(dir, "talk.mp3")
	if err := os.WriteFile(mp3, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLocal(audio.NewProcessor())
	ref := Ref{ID: LocalID(mp3), URL: mp3, Kind: KindLocal}

	got, err := l.FetchAudio(context.Background(), ref, t.TempDir())
	if err != nil {
		t.Fatalf("FetchAudio() error = %v", err)
	}
	if got != mp3 {
		t.Errorf("FetchAudio() = %q, want the original file untouched", got)
	}
}

func TestLocalListDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.mp3", "a.wav", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.mp3"), 0o755); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{output: []byte(`{"format":{"duration":"12.5"}}`)}
	l := NewLocal(audio.NewProcessor(audio.WithRunner(runner)))

	refs, err := l.ListDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ListDir() error = %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("ListDir() returned %d refs, want 2", len(refs))
	}
	for _, ref := range refs {
		if ref.Kind != KindLocal {
			t.Errorf("ref %s kind = %v, want KindLocal", ref.ID, ref.Kind)
		}
		if ref.Duration != 12.5 {
			t.Errorf("ref %s duration = %v, want 12.5", ref.ID, ref.Duration)
		}
	}

	_, err = l.ListDir(context.Background(), filepath.Join(dir, "missing"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ListDir(missing) error = %v, want ErrInvalidInput", err)
	}
}

func TestRefIsLocal(t *testing.T) {
	t.Parallel()

	if !(Ref{Kind: KindLocal}).IsLocal() {
		t.Error("local ref should report IsLocal")
	}
	if (Ref{Kind: KindYouTube}).IsLocal() {
		t.Error("youtube ref should not report IsLocal")
	}
}

// ---------------------------------------------------------------------------
// Detector
// ---------------------------------------------------------------------------

func TestDetector(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mp3 := filepath.Join(dir, "talk.mp3")
	if err := os.WriteFile(mp3, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	yt := NewYouTube(&fakeRunner{}, audio.NewProcessor())
	local := NewLocal(audio.NewProcessor())
	det := NewDetector(yt, local)

	src, err := det.Detect("https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if _, ok := src.(*YouTube); !ok {
		t.Errorf("Detect() = %T, want *YouTube", src)
	}

	src, err = det.Detect(mp3)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if _, ok := src.(*Local); !ok {
		t.Errorf("Detect() = %T, want *Local", src)
	}

	if _, err := det.Detect("nonsense input"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}
