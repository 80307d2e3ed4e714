package transcribe

import "errors"

// ErrTranscription indicates the transcription pipeline failed for a
// reason other than a classified API error.
var ErrTranscription = errors.New("transcription failed")
