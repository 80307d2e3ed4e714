// Package tool runs the external command-line programs the pipeline
// depends on (yt-dlp, ffmpeg, ffprobe) and normalizes their failures.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotFound indicates the external binary is not installed or not on PATH.
var ErrNotFound = errors.New("external tool not found")

// ErrToolFailed indicates the external tool ran but exited non-zero.
var ErrToolFailed = errors.New("external tool failed")

// Runner executes external commands. The single-method interface keeps
// every subprocess call mockable in tests.
type Runner interface {
	// Run executes name with args and returns captured stdout.
	// Stderr is folded into the returned error on failure.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// OSRunner is the production Runner backed by exec.CommandContext.
type OSRunner struct{}

var _ Runner = OSRunner{}

func (OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 -- name is one of the known tools, args are built by callers
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%s: %s: %w", name, msg, ErrToolFailed)
	}
	return stdout.Bytes(), nil
}

// isNotFound reports whether err means the binary itself is missing,
// as opposed to the tool running and failing.
func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

// LookPath resolves the named tool on PATH.
func LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return path, nil
}
