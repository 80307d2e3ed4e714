package cli

import "errors"

// ErrOutputExists indicates the output file already exists.
var ErrOutputExists = errors.New("output file exists")

// ErrNotYouTube indicates a playlist operation on a non-YouTube input.
var ErrNotYouTube = errors.New("input is not a YouTube URL")
