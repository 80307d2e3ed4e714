// Package cli implements the lytt command surface on top of the
// pipeline packages.
package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/alnah/lytt/internal/config"
	"github.com/alnah/lytt/internal/store"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in
// isolation; DefaultEnv returns production wiring.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	Getenv func(string) string

	// LoadConfig loads settings, an empty path meaning the default
	// config file location.
	LoadConfig func(path string) (config.Settings, error)

	// OpenStore opens the document store at path.
	OpenStore func(path string) (*store.Store, error)

	// Log is configured by the root command from the verbosity flags.
	Log zerolog.Logger
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) { e.Stdout = w }
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) { e.Stderr = w }
}

// WithStdin sets the input reader for interactive commands.
func WithStdin(r io.Reader) EnvOption {
	return func(e *Env) { e.Stdin = r }
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) { e.Getenv = fn }
}

// WithConfigLoader sets the settings loader.
func WithConfigLoader(fn func(path string) (config.Settings, error)) EnvOption {
	return func(e *Env) { e.LoadConfig = fn }
}

// WithStoreOpener sets the store opener.
func WithStoreOpener(fn func(path string) (*store.Store, error)) EnvOption {
	return func(e *Env) { e.OpenStore = fn }
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Stdin:      os.Stdin,
		Getenv:     os.Getenv,
		LoadConfig: config.Load,
		OpenStore:  func(path string) (*store.Store, error) { return store.Open(path) },
		Log:        zerolog.Nop(),
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}
