// Package config loads user settings from ~/.config/lytt/config
// (key=value lines), environment variables and built-in defaults, in
// that precedence order.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrConfig indicates missing or malformed configuration.
var ErrConfig = errors.New("configuration error")

// Config keys.
const (
	KeyWhisperModel   = "whisper-model"
	KeyTextModel      = "text-model"
	KeyChatModel      = "chat-model"
	KeyEmbeddingModel = "embedding-model"
	KeyLanguage       = "language"
	KeySegmentSeconds = "segment-seconds"
	KeyMaxParallel    = "max-parallel"
	KeyChunkStrategy  = "chunk-strategy"
	KeyChunkTarget    = "chunk-target-seconds"
	KeyChunkMin       = "chunk-min-seconds"
	KeyChunkMax       = "chunk-max-seconds"
	KeyMaxDuration    = "max-duration-seconds"
	KeyKeepAudio      = "keep-audio"
	KeyDatabasePath   = "database-path"
	KeyAudioDir       = "audio-dir"
	KeyFusion         = "fusion"
)

// Environment variable fallbacks.
const (
	EnvAPIKey   = "OPENAI_API_KEY"
	EnvLogLevel = "LYTT_LOG_LEVEL"
)

// Settings holds every tunable of the pipeline.
type Settings struct {
	APIKey string

	WhisperModel   string
	TextModel      string
	ChatModel      string
	EmbeddingModel string
	Language       string
	Fusion         bool

	SegmentSeconds float64
	MaxParallel    int

	ChunkStrategy      string
	ChunkTargetSeconds float64
	ChunkMinSeconds    float64
	ChunkMaxSeconds    float64

	MaxDurationSeconds float64
	KeepAudio          bool

	DatabasePath string
	AudioDir     string
	PromptsDir   string
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		WhisperModel:       "whisper-1",
		TextModel:          "gpt-4o-transcribe",
		ChatModel:          "gpt-4o",
		EmbeddingModel:     "text-embedding-3-small",
		Fusion:             true,
		SegmentSeconds:     600,
		MaxParallel:        2,
		ChunkStrategy:      "temporal",
		ChunkTargetSeconds: 180,
		ChunkMinSeconds:    60,
		ChunkMaxSeconds:    600,
		MaxDurationSeconds: 0,
		KeepAudio:          false,
	}
}

// dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/lytt.
func dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lytt"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "lytt"), nil
}

// dataDir returns the data directory path.
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share/lytt.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "lytt"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "lytt"), nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config"), nil
}

// Load reads settings from the config file (or an explicit path),
// overlaying defaults, and fills data paths and the API key from the
// environment.
func Load(configPath string) (Settings, error) {
	cfg := Defaults()

	p := configPath
	if p == "" {
		var err error
		p, err = Path()
		if err != nil {
			return cfg, err
		}
	}

	data, err := parseFile(p)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if data != nil {
		applyFile(&cfg, data)
	}

	cfg.APIKey = os.Getenv(EnvAPIKey)

	dd, err := dataDir()
	if err != nil {
		return cfg, err
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(dd, "index.db")
	}
	if cfg.AudioDir == "" {
		cfg.AudioDir = filepath.Join(dd, "audio")
	}
	cd, err := dir()
	if err != nil {
		return cfg, err
	}
	cfg.PromptsDir = filepath.Join(cd, "prompts")

	return cfg, nil
}

// RequireAPIKey fails with ErrConfig when no provider credential is set.
func (s Settings) RequireAPIKey() error {
	if s.APIKey == "" {
		return fmt.Errorf("%s is not set: %w", EnvAPIKey, ErrConfig)
	}
	return nil
}

// applyFile overlays file values onto cfg. Unknown keys are ignored so
// newer config files do not break older binaries.
func applyFile(cfg *Settings, data map[string]string) {
	setString := func(key string, dst *string) {
		if v, ok := data[key]; ok && v != "" {
			*dst = v
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := data[key]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := data[key]; ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString(KeyWhisperModel, &cfg.WhisperModel)
	setString(KeyTextModel, &cfg.TextModel)
	setString(KeyChatModel, &cfg.ChatModel)
	setString(KeyEmbeddingModel, &cfg.EmbeddingModel)
	setString(KeyLanguage, &cfg.Language)
	setString(KeyChunkStrategy, &cfg.ChunkStrategy)
	setString(KeyDatabasePath, &cfg.DatabasePath)
	setString(KeyAudioDir, &cfg.AudioDir)
	setFloat(KeySegmentSeconds, &cfg.SegmentSeconds)
	setFloat(KeyChunkTarget, &cfg.ChunkTargetSeconds)
	setFloat(KeyChunkMin, &cfg.ChunkMinSeconds)
	setFloat(KeyChunkMax, &cfg.ChunkMaxSeconds)
	setFloat(KeyMaxDuration, &cfg.MaxDurationSeconds)
	setBool(KeyKeepAudio, &cfg.KeepAudio)
	setBool(KeyFusion, &cfg.Fusion)
	if v, ok := data[KeyMaxParallel]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxParallel = n
		}
	}
}

// Keys returns every recognized config key in stable order.
func Keys() []string {
	return []string{
		KeyWhisperModel, KeyTextModel, KeyChatModel, KeyEmbeddingModel,
		KeyLanguage, KeyFusion, KeySegmentSeconds, KeyMaxParallel,
		KeyChunkStrategy, KeyChunkTarget, KeyChunkMin, KeyChunkMax,
		KeyMaxDuration, KeyKeepAudio, KeyDatabasePath, KeyAudioDir,
	}
}

// parseFile reads a key=value config file.
// Format: one key=value per line, # comments, empty lines ignored.
func parseFile(p string) (map[string]string, error) {
	f, err := os.Open(p) // #nosec G304 -- config path is constructed from home dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid syntax at line %d: %q: %w", lineNum, line, ErrConfig)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		data[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return data, nil
}

// Save writes a single key=value to the config file.
// Creates the config directory and file if they don't exist.
// Preserves existing key=value pairs but discards comments.
func Save(key, value string) error {
	p, err := Path()
	if err != nil {
		return err
	}

	d := filepath.Dir(p)
	if err := os.MkdirAll(d, 0o750); err != nil { // #nosec G301 -- user config dir
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	existing, _ := parseFile(p)
	if existing == nil {
		existing = make(map[string]string)
	}
	existing[key] = value

	return writeFile(p, existing)
}

// writeFile writes the config map to a file, keys in stable order.
func writeFile(p string, data map[string]string) error {
	// #nosec G302 G304 -- config file with standard permissions, path from home dir
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, key := range Keys() {
		if value, ok := data[key]; ok {
			if _, err := fmt.Fprintf(f, "%s=%s\n", key, value); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			delete(data, key)
		}
	}
	for key, value := range data {
		if _, err := fmt.Fprintf(f, "%s=%s\n", key, value); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
	}

	return nil
}

// Get reads a single value from the config file.
// Returns empty string if the key doesn't exist.
func Get(key string) (string, error) {
	p, err := Path()
	if err != nil {
		return "", err
	}

	data, err := parseFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	return data[key], nil
}

// List returns all config values as a map.
func List() (map[string]string, error) {
	p, err := Path()
	if err != nil {
		return nil, err
	}

	data, err := parseFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	return data, nil
}

// WriteDefault creates a commented config file with the defaults, used
// by the init command. Fails if the file already exists.
func WriteDefault() (string, error) {
	p, err := Path()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err == nil {
		return p, fmt.Errorf("config file already exists: %s: %w", p, ErrConfig)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil { // #nosec G301 -- user config dir
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}

	def := Defaults()
	content := fmt.Sprintf(`# lytt configuration
# Lines are key=value; # starts a comment.

%s=%s
%s=%s
%s=%s
%s=%s
%s=%t
%s=%.0f
%s=%d
%s=%s
%s=%.0f
%s=%.0f
%s=%.0f
%s=%.0f
%s=%t
`,
		KeyWhisperModel, def.WhisperModel,
		KeyTextModel, def.TextModel,
		KeyChatModel, def.ChatModel,
		KeyEmbeddingModel, def.EmbeddingModel,
		KeyFusion, def.Fusion,
		KeySegmentSeconds, def.SegmentSeconds,
		KeyMaxParallel, def.MaxParallel,
		KeyChunkStrategy, def.ChunkStrategy,
		KeyChunkTarget, def.ChunkTargetSeconds,
		KeyChunkMin, def.ChunkMinSeconds,
		KeyChunkMax, def.ChunkMaxSeconds,
		KeyMaxDuration, def.MaxDurationSeconds,
		KeyKeepAudio, def.KeepAudio,
	)
	// #nosec G306 -- user config file
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return p, nil
}
