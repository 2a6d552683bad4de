package engine

import (
	"context"

	"github.com/keweikao/sales-ai-automation-V2/internal/vad"
)

// Engine transcribes a single self-contained audio file. Implementations are
// owned by exactly one worker; sharing an instance across goroutines is not
// supported.
type Engine interface {
	// TranscribeFile runs inference over the whole file and returns every
	// segment with file-local timestamps.
	TranscribeFile(ctx context.Context, path string, opts Options) (Result, error)
	// Close releases underlying resources.
	Close() error
}

// Options configures decoding for a single file.
type Options struct {
	Language string
	BeamSize int
	// VAD, when set, forwards the curated silero parameter set into the
	// inner engine's vad_filter. The set is closed; unknown knobs are
	// rejected long before an Engine sees them.
	VAD *vad.Params
}

// Segment is one transcribed span in file-local time.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	// Confidence is the segment's average log-probability; larger means
	// more confident.
	Confidence float64 `json:"confidence"`
}

// Result is the engine's output contract for one file.
type Result struct {
	Language            string    `json:"language"`
	LanguageProbability float64   `json:"language_probability"`
	Duration            float64   `json:"duration"`
	Segments            []Segment `json:"segments"`
}

// Factory creates a fresh Engine. The transcriber calls it once per worker
// at pool start and closes every instance at pool shutdown.
type Factory func() (Engine, error)
