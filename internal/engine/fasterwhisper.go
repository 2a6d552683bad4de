package engine

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

//go:embed assets/faster_whisper.py
var helperScript []byte

// ErrModelLoad marks failures to load or resolve model weights. Callers use
// errors.Is to separate these from ordinary transcription failures.
var ErrModelLoad = errors.New("engine: model load failed")

// helper exit codes, mirrored by assets/faster_whisper.py.
const (
	exitTranscribe = 2
	exitModelLoad  = 3
)

// fasterWhisperEngine drives faster-whisper through an embedded Python
// helper. Each instance materialises its own copy of the helper script and
// removes it on Close.
type fasterWhisperEngine struct {
	cfg        ModelConfig
	scriptPath string
	log        *slog.Logger
}

// NewFasterWhisperEngine writes the helper script to the temp directory and
// returns an engine bound to it.
func NewFasterWhisperEngine(cfg ModelConfig, logger *slog.Logger) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	scriptPath := filepath.Join(os.TempDir(), fmt.Sprintf("faster_whisper_%s.py", uuid.NewString()))
	if err := os.WriteFile(scriptPath, helperScript, 0o755); err != nil {
		return nil, fmt.Errorf("engine: write helper script: %w", err)
	}

	return &fasterWhisperEngine{
		cfg:        cfg,
		scriptPath: scriptPath,
		log: logger.With(
			"component", "engine.fasterwhisper",
			"model_size", cfg.ModelSize,
			"device", cfg.Device,
		),
	}, nil
}

func (e *fasterWhisperEngine) TranscribeFile(ctx context.Context, path string, opts Options) (Result, error) {
	args := []string{
		e.scriptPath,
		"--audio", path,
		"--model", e.cfg.ModelSize,
		"--device", e.cfg.Device,
		"--compute-type", e.cfg.ComputeType,
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.BeamSize > 0 {
		args = append(args, "--beam-size", strconv.Itoa(opts.BeamSize))
	}
	if opts.VAD != nil {
		args = append(args,
			"--vad-filter",
			"--vad-threshold", strconv.FormatFloat(opts.VAD.Threshold, 'f', -1, 64),
			"--vad-min-speech-ms", strconv.Itoa(opts.VAD.MinSpeechDurationMs),
			"--vad-min-silence-ms", strconv.Itoa(opts.VAD.MinSilenceDurationMs),
			"--vad-pad-ms", strconv.Itoa(opts.VAD.SpeechPadMs),
		)
	}

	cmd := exec.CommandContext(ctx, e.cfg.Python, args...)
	cmd.Env = os.Environ()
	out, err := cmd.Output()
	if err != nil {
		return Result{}, e.classify(err)
	}

	result, err := parseHelperOutput(out)
	if err != nil {
		return Result{}, err
	}
	result.Language = normaliseLanguage(result.Language, opts.Language)
	e.log.Debug("helper finished",
		"path", path,
		"segments", len(result.Segments),
		"language", result.Language,
	)
	return result, nil
}

func (e *fasterWhisperEngine) Close() error {
	if e.scriptPath == "" {
		return nil
	}
	err := os.Remove(e.scriptPath)
	e.scriptPath = ""
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("engine: remove helper script: %w", err)
	}
	return nil
}

func (e *fasterWhisperEngine) classify(err error) error {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		detail := strings.TrimSpace(string(ee.Stderr))
		switch ee.ExitCode() {
		case exitModelLoad:
			return fmt.Errorf("%w: %s", ErrModelLoad, detail)
		case exitTranscribe:
			return fmt.Errorf("engine: transcription failed: %s", detail)
		default:
			return fmt.Errorf("engine: helper exited %d: %s", ee.ExitCode(), detail)
		}
	}
	return fmt.Errorf("engine: run helper: %w", err)
}

type helperOutput struct {
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
	Duration            float64 `json:"duration"`
	Segments            []struct {
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func parseHelperOutput(raw []byte) (Result, error) {
	var parsed helperOutput
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("engine: parse helper output: %w", err)
	}

	result := Result{
		Language:            parsed.Language,
		LanguageProbability: parsed.LanguageProbability,
		Duration:            parsed.Duration,
	}
	for _, seg := range parsed.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		result.Segments = append(result.Segments, Segment{
			Start:      seg.Start,
			End:        seg.End,
			Text:       text,
			Confidence: seg.AvgLogprob,
		})
	}
	return result, nil
}
