// Package media resolves user input (URLs, file paths) into media
// references and fetches their audio.
package media

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for source resolution failures.
var (
	// ErrInvalidInput indicates no source can handle the given input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSource indicates a source failed to resolve metadata or fetch audio.
	ErrSource = errors.New("source failure")
)

// Kind identifies where a piece of media comes from.
type Kind string

const (
	KindYouTube Kind = "youtube"
	KindLocal   Kind = "local"
)

// Ref identifies one piece of media across the whole system.
type Ref struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Kind     Kind    `json:"kind"`
	Duration float64 `json:"duration_seconds,omitempty"`
}

// IsLocal reports whether the media came from the local filesystem.
// Local ids carry the "local_" prefix, so this holds for refs rebuilt
// from stored ids as well.
func (r Ref) IsLocal() bool {
	return r.Kind == KindLocal
}

// Source resolves inputs of one origin into refs and fetches their audio.
type Source interface {
	// CanHandle reports whether this source recognizes the input.
	CanHandle(input string) bool

	// MediaID derives the stable media id from the input without any
	// network or subprocess work.
	MediaID(input string) (string, error)

	// Resolve turns the input into a full Ref with metadata.
	Resolve(ctx context.Context, input string) (Ref, error)

	// FetchAudio downloads or prepares the audio as an mp3 under dir
	// and returns its path.
	FetchAudio(ctx context.Context, ref Ref, dir string) (string, error)
}

// Detector routes input to the first source that accepts it. Remote
// sources are consulted before the local one so a URL is never mistaken
// for a path.
type Detector struct {
	sources []Source
}

// NewDetector builds a Detector over the given sources, in match order.
func NewDetector(sources ...Source) *Detector {
	return &Detector{sources: sources}
}

// Detect returns the source that handles input.
func (d *Detector) Detect(input string) (Source, error) {
	for _, s := range d.sources {
		if s.CanHandle(input) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no source can handle %q: %w", input, ErrInvalidInput)
}
