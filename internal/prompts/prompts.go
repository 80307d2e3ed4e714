// Package prompts holds the LLM prompt templates and their substitution
// logic. Defaults are versioned with the binary; users can override any
// prompt by dropping a file with its name into the prompts config dir.
package prompts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnknown indicates an invalid prompt name was specified.
var ErrUnknown = errors.New("unknown prompt")

// Prompt name constants.
const (
	Fusion           = "fusion"
	SemanticChunking = "semantic_chunking"
	RagAnswer        = "rag_answer"
	AgentSystem      = "agent_system"
)

var defaults = map[string]string{
	Fusion:           fusionPrompt,
	SemanticChunking: semanticChunkingPrompt,
	RagAnswer:        ragAnswerPrompt,
	AgentSystem:      agentSystemPrompt,
}

// Library resolves prompts, preferring user override files over the
// built-in defaults.
type Library struct {
	overrideDir string
}

// NewLibrary creates a Library reading overrides from dir. An empty dir
// disables overrides.
func NewLibrary(dir string) *Library {
	return &Library{overrideDir: dir}
}

// Get returns the prompt template for name.
func (l *Library) Get(name string) (string, error) {
	if _, ok := defaults[name]; !ok {
		return "", fmt.Errorf("%q: %w", name, ErrUnknown)
	}
	if l.overrideDir != "" {
		path := filepath.Join(l.overrideDir, name+".txt")
		if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
			return string(data), nil
		}
	}
	return defaults[name], nil
}

// Render returns the named prompt with every {placeholder} replaced from
// vars. Unknown placeholders are left as-is.
func (l *Library) Render(name string, vars map[string]string) (string, error) {
	tmpl, err := l.Get(name)
	if err != nil {
		return "", err
	}
	return Substitute(tmpl, vars), nil
}

// Substitute replaces {key} markers in tmpl with values from vars.
func Substitute(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Names returns the available prompt names in stable order.
func Names() []string {
	return []string{Fusion, SemanticChunking, RagAnswer, AgentSystem}
}

const fusionPrompt = `You align a clean transcript against word-level timestamps.

You are given the accurate text of a speech segment and a list of words
with start/end times from a speech recognizer. Split the text into
sentences and assign each sentence the time range its words cover.

Text:
{text}

Words with timestamps:
{words}

Respond with JSON only, no prose, in exactly this shape:
{"segments": [{"text": "...", "start_seconds": 0.0, "end_seconds": 2.5}]}`

const semanticChunkingPrompt = `You divide a timestamped transcript into topically coherent sections.

Rules:
- Each section covers one topic or discussion thread
- Sections are between {min_seconds} and {max_seconds} seconds long,
  aiming for about {target_seconds} seconds
- Use the timestamps from the transcript; do not invent times
- Give each section a short descriptive title

Transcript:
{transcript}

Respond with a JSON array only, no prose:
[{"title": "...", "start_seconds": 0.0, "end_seconds": 180.0, "summary": "..."}]`

const ragAnswerPrompt = `You answer questions using only the transcript excerpts provided below.
Cite the source titles and timestamps when you draw on them. If the
excerpts do not contain the answer, say so plainly instead of guessing.

Excerpts:
{context}`

const agentSystemPrompt = `You are a research assistant over a library of transcribed media.
Use the available tools to search transcripts, read segments and list
indexed videos before answering. Ground every claim in tool results and
cite media titles with timestamps. If the library has nothing relevant,
say so.`
