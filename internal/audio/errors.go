package audio

import "errors"

// ErrNoAudioFile indicates no audio file was produced or found after a
// download completed.
var ErrNoAudioFile = errors.New("no audio file found")

// ErrProbe indicates ffprobe output could not be parsed.
var ErrProbe = errors.New("cannot probe audio duration")
