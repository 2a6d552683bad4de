package pipeline

import "errors"

// The three raised error planes. Everything else — single-chunk failures,
// deadline-partial results — is data on the FinalTranscript, never an error.
var (
	// ErrConfig marks invalid configuration, surfaced before any stage runs.
	ErrConfig = errors.New("configuration error")
	// ErrInput marks an unreadable or undecodable input file.
	ErrInput = errors.New("input error")
	// ErrModel marks unavailable or incompatible model weights.
	ErrModel = errors.New("model load error")
)
