package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/keweikao/sales-ai-automation-V2/internal/config"
	"github.com/keweikao/sales-ai-automation-V2/internal/engine"
	"github.com/keweikao/sales-ai-automation-V2/internal/pipeline"
	"github.com/keweikao/sales-ai-automation-V2/internal/vad"
)

// Exit codes. A run with failed chunks still exits 0; consumers read the
// failure count from the JSON output.
const (
	exitOK     = 0
	exitConfig = 1
	exitInput  = 2
	exitModel  = 3
)

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	var (
		audioPath   string
		modelSize   string
		device      string
		computeType string
		workers     int
		vadPreset   string
		language    string
		formats     stringList
		outputDir   string
		configFile  string
		timeout     time.Duration
		stubEngine  bool
		logLevel    string
	)

	fs := flag.NewFlagSet("transcribe", flag.ContinueOnError)
	fs.StringVar(&audioPath, "audio", "", "Path to the input audio file (required)")
	fs.StringVar(&modelSize, "model", "", fmt.Sprintf("Whisper model size (%s)", strings.Join(engine.ModelSizes(), "|")))
	fs.StringVar(&device, "device", "", "Inference device (cpu|cuda)")
	fs.StringVar(&computeType, "compute-type", "", "Compute precision (int8|float16|float32)")
	fs.IntVar(&workers, "workers", 0, "Parallel transcription workers")
	fs.StringVar(&vadPreset, "vad-preset", "", fmt.Sprintf("VAD preset (%s)", strings.Join(vad.PresetNames(), "|")))
	fs.StringVar(&language, "language", "", "Language code forwarded to the model")
	fs.Var(&formats, "formats", "Output formats, comma-separated or repeated (txt,json,srt,vtt)")
	fs.StringVar(&outputDir, "output", "", "Output directory (default: alongside the input)")
	fs.StringVar(&configFile, "config", "", "YAML configuration file")
	fs.DurationVar(&timeout, "timeout", 0, "Optional processing deadline (e.g. 30m)")
	fs.BoolVar(&stubEngine, "stub-engine", false, "Use the deterministic stub engine (testing/ops)")
	fs.StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	if audioPath == "" {
		fmt.Fprintln(os.Stderr, "missing required --audio flag")
		fs.Usage()
		return exitConfig
	}

	cfg, err := config.Loader{File: configFile}.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfig
	}

	// Explicit flags override environment and file.
	applyIfSet(&cfg.ModelSize, modelSize)
	applyIfSet(&cfg.Device, device)
	applyIfSet(&cfg.ComputeType, computeType)
	applyIfSet(&cfg.VADPreset, vadPreset)
	applyIfSet(&cfg.Language, language)
	applyIfSet(&cfg.LogLevel, logLevel)
	if workers > 0 {
		cfg.MaxWorkers = workers
	}
	if len(formats) > 0 {
		cfg.OutputFormats = formats
	}
	if stubEngine {
		cfg.UseStubEngine = true
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Dir(audioPath)
	}

	logger := newLogger(cfg.LogLevel)

	pipe, err := pipeline.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	final, err := pipe.Process(ctx, audioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitCode(err)
	}

	for _, timing := range final.Metadata.StageTimings {
		fmt.Printf("  %-12s %8.2fs  %s\n", timing.Stage, timing.Seconds, timing.Status)
	}
	fmt.Printf("done: %d segments, %d/%d chunks ok, %d failed, %.1fs (%.2fx)\n",
		final.TotalSegments,
		final.ChunksProcessed,
		final.ChunksProcessed+final.ChunksFailed,
		final.ChunksFailed,
		final.Metadata.PipelineTime,
		final.Metadata.SpeedRatio,
	)
	return exitOK
}

func applyIfSet(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInput):
		return exitInput
	case errors.Is(err, pipeline.ErrModel):
		return exitModel
	case errors.Is(err, pipeline.ErrConfig):
		return exitConfig
	default:
		return exitConfig
	}
}

func newLogger(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(value string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
