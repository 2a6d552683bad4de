package pipelineinfo

// Metadata captures static identifiers for the pipeline. Centralising the
// values keeps CLI output, server responses, and telemetry labels in sync.
type Metadata struct {
	Name        string
	BinaryName  string
	Slug        string
	Description string
	Version     string
}

// Info describes the current pipeline build.
var Info = Metadata{
	Name:        "Optimized Transcription Pipeline",
	BinaryName:  "transcribe",
	Slug:        "transcribe-pipeline",
	Description: "Long-audio Whisper transcription with VAD-driven chunking and bounded-parallel inference.",
	Version:     "2.0.0",
}

// RunMetadata produces the standard metadata payload attached to pipeline
// results.
func RunMetadata(modelSize, device, language string) map[string]string {
	return map[string]string{
		"generator":  Info.Slug,
		"model_size": modelSize,
		"device":     device,
		"language":   language,
	}
}
