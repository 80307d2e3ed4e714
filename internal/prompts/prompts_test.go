package prompts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	t.Parallel()

	t.Run("returns built-in defaults", func(t *testing.T) {
		t.Parallel()

		lib := NewLibrary("")
		for _, name := range Names() {
			got, err := lib.Get(name)
			if err != nil {
				t.Errorf("Get(%q) error = %v", name, err)
			}
			if got == "" {
				t.Errorf("Get(%q) = empty prompt", name)
			}
		}
	})

	t.Run("override file wins", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		custom := "my custom answer prompt with {context}"
		if err := os.WriteFile(filepath.Join(dir, RagAnswer+".txt"), []byte(custom), 0o644); err != nil {
			t.Fatal(err)
		}

		got, err := NewLibrary(dir).Get(RagAnswer)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != custom {
			t.Errorf("Get() = %q, want the override", got)
		}
	})

	t.Run("empty override file falls back to default", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, RagAnswer+".txt"), nil, 0o644); err != nil {
			t.Fatal(err)
		}

		got, err := NewLibrary(dir).Get(RagAnswer)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != defaults[RagAnswer] {
			t.Error("empty override must not blank the prompt")
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		t.Parallel()

		if _, err := NewLibrary("").Get("no_such_prompt"); !errors.Is(err, ErrUnknown) {
			t.Errorf("error = %v, want ErrUnknown", err)
		}
	})
}

func TestRender(t *testing.T) {
	t.Parallel()

	got, err := NewLibrary("").Render(RagAnswer, map[string]string{"context": "THE EXCERPTS"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(got, "THE EXCERPTS") {
		t.Errorf("Render() did not substitute context:\n%s", got)
	}
	if strings.Contains(got, "{context}") {
		t.Error("placeholder left behind")
	}

	if _, err := NewLibrary("").Render("nope", nil); !errors.Is(err, ErrUnknown) {
		t.Errorf("error = %v, want ErrUnknown", err)
	}
}

func TestSubstitute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tmpl string
		vars map[string]string
		want string
	}{
		{"single", "hi {name}", map[string]string{"name": "ada"}, "hi ada"},
		{"multiple", "{a}-{b}", map[string]string{"a": "1", "b": "2"}, "1-2"},
		{"repeated", "{x} and {x}", map[string]string{"x": "y"}, "y and y"},
		{"unknown left alone", "keep {unknown}", map[string]string{"known": "v"}, "keep {unknown}"},
		{"no vars", "plain text", nil, "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Substitute(tt.tmpl, tt.vars); got != tt.want {
				t.Errorf("Substitute() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNames(t *testing.T) {
	t.Parallel()

	names := Names()
	if len(names) != len(defaults) {
		t.Fatalf("Names() has %d entries, defaults has %d", len(names), len(defaults))
	}
	for _, name := range names {
		if _, ok := defaults[name]; !ok {
			t.Errorf("Names() lists %q with no default", name)
		}
	}
}
