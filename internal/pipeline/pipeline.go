package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/keweikao/sales-ai-automation-V2/internal/audio"
	"github.com/keweikao/sales-ai-automation-V2/internal/chunker"
	"github.com/keweikao/sales-ai-automation-V2/internal/config"
	"github.com/keweikao/sales-ai-automation-V2/internal/diarize"
	"github.com/keweikao/sales-ai-automation-V2/internal/engine"
	"github.com/keweikao/sales-ai-automation-V2/internal/merger"
	"github.com/keweikao/sales-ai-automation-V2/internal/pipelineinfo"
	"github.com/keweikao/sales-ai-automation-V2/internal/telemetry"
	"github.com/keweikao/sales-ai-automation-V2/internal/transcriber"
	"github.com/keweikao/sales-ai-automation-V2/internal/vad"
)

// Stage names used in timings and logs.
const (
	StageVAD        = "vad"
	StageChunk      = "chunk"
	StageTranscribe = "transcribe"
	StageMerge      = "merge"
)

// Deps are the pipeline's injectable collaborators. Production wiring uses
// ffmpeg and the faster-whisper engine; tests substitute fakes.
type Deps struct {
	Prober    audio.Prober
	PCM       audio.PCMReader
	Extractor audio.Extractor
	Factory   engine.Factory
	Recorder  *telemetry.Recorder
}

// Pipeline wires VAD, chunking, parallel transcription, and merging behind
// a single entry point. Stages never call each other; all sequencing and
// all temp-file ownership live here.
type Pipeline struct {
	cfg  config.Config
	deps Deps
	log  *slog.Logger
}

// New builds a production Pipeline. The configuration is validated here;
// an invalid record never reaches a stage.
func New(cfg config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ffmpeg := audio.NewFFmpeg(logger)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	factory, err := engine.NewFactory(cfg.Model(), cfg.UseStubEngine, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	return NewWithDeps(cfg, Deps{
		Prober:    ffmpeg,
		PCM:       ffmpeg,
		Extractor: ffmpeg,
		Factory:   factory,
		Recorder:  telemetry.NewRecorder(logger),
	}, logger)
}

// NewWithDeps builds a Pipeline with explicit collaborators. cfg must
// already validate; the check is repeated so no caller can skip it.
func NewWithDeps(cfg config.Config, deps Deps, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if deps.Prober == nil || deps.PCM == nil || deps.Extractor == nil || deps.Factory == nil {
		return nil, fmt.Errorf("%w: missing pipeline dependencies", ErrConfig)
	}
	if deps.Recorder == nil {
		deps.Recorder = telemetry.NewRecorder(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		log:  logger.With("component", "pipeline.Pipeline"),
	}, nil
}

// Config returns the validated configuration the pipeline runs with.
func (p *Pipeline) Config() config.Config {
	return p.cfg
}

// Recorder exposes the telemetry recorder for the server mode.
func (p *Pipeline) Recorder() *telemetry.Recorder {
	return p.deps.Recorder
}

// Process runs the full pipeline over one audio file and returns the merged
// transcript. It raises only for configuration, input I/O, and model-load
// failures; single-chunk failures and deadline-partial results are reflected
// in the transcript's ChunksFailed.
func (p *Pipeline) Process(ctx context.Context, audioPath string) (*merger.FinalTranscript, error) {
	started := time.Now()
	metrics := p.deps.Recorder.StartRun(audioPath)

	final, err := p.process(ctx, audioPath, started)
	if err != nil {
		metrics.Finish(err)
		return nil, err
	}
	metrics.RecordChunks(final.ChunksProcessed+final.ChunksFailed, final.ChunksFailed)
	metrics.RecordResult(final.TotalSegments, final.Metadata.AudioDuration)
	metrics.Finish(nil)
	return final, nil
}

func (p *Pipeline) process(ctx context.Context, audioPath string, started time.Time) (*merger.FinalTranscript, error) {
	// The deadline only gates chunk submission: an expiring ctx must yield
	// a partial transcript, never a raised input error from a killed
	// ffprobe/ffmpeg. Probe and VAD decode therefore run detached, the way
	// in-flight chunk inference does.
	preCtx := context.WithoutCancel(ctx)

	// Pre-flight: the input must probe before any temp state exists, so a
	// corrupt file leaves nothing behind.
	ref, err := p.deps.Prober.Probe(preCtx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}
	p.log.Info("input probed",
		"path", ref.Path,
		"duration", ref.Duration,
		"sample_rate", ref.SampleRate,
		"channels", ref.Channels,
	)

	tempDir, err := os.MkdirTemp("", "transcribe_run_")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp dir: %v", ErrInput, err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			p.log.Warn("failed to remove temp dir", "path", tempDir, "error", err)
		}
	}()

	var timings []merger.StageTiming
	stage := func(name string, fn func() error) error {
		stageStart := time.Now()
		err := fn()
		status := "ok"
		if err != nil {
			status = "failed"
		} else if ctx.Err() != nil {
			status = "deadline exceeded"
		}
		timings = append(timings, merger.StageTiming{
			Stage:   name,
			Seconds: time.Since(stageStart).Seconds(),
			Status:  status,
		})
		p.log.Info("stage finished", "stage", name, "elapsed", time.Since(stageStart), "status", status)
		return err
	}

	var intervals []vad.Interval
	if err := stage(StageVAD, func() error {
		processor, err := vad.NewProcessor(p.cfg.VAD(), p.deps.PCM, p.log)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
		intervals, err = processor.Detect(preCtx, audioPath)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInput, err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var chunks []chunker.Chunk
	if err := stage(StageChunk, func() error {
		ck, err := chunker.New(p.cfg.Chunker(), p.log)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
		chunks, err = ck.Plan(intervals, ref.Duration)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInput, err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var results []transcriber.ChunkResult
	if err := stage(StageTranscribe, func() error {
		vadParams := p.cfg.VAD()
		tr, err := transcriber.New(p.cfg.Transcriber(), p.deps.Factory, p.deps.Extractor, &vadParams, p.log)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
		results, err = tr.TranscribeChunks(ctx, audioPath, chunks, tempDir)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrModel, err)
		}
		return classifyTotalFailure(results)
	}); err != nil {
		return nil, err
	}

	var final *merger.FinalTranscript
	_ = stage(StageMerge, func() error {
		final = merger.New(p.cfg.OverlapDuration, p.log).Merge(results)
		return nil
	})

	pipelineTime := time.Since(started).Seconds()
	final.Metadata = merger.ProcessingMetadata{
		AudioPath:     audioPath,
		AudioDuration: ref.Duration,
		ModelSize:     p.cfg.ModelSize,
		Device:        p.cfg.Device,
		Language:      p.cfg.Language,
		Workers:       p.cfg.MaxWorkers,
		ChunkCount:    len(chunks),
		StageTimings:  timings,
		PipelineTime:  pipelineTime,
		ChunkDetails:  chunkDetails(results),
		Generator:     pipelineinfo.RunMetadata(p.cfg.ModelSize, p.cfg.Device, p.cfg.Language),
	}
	if ref.Duration > 0 {
		final.Metadata.SpeedRatio = pipelineTime / ref.Duration
	}

	if p.cfg.OutputDir != "" && len(p.cfg.OutputFormats) > 0 {
		stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
		paths, err := merger.WriteFiles(final, p.cfg.OutputDir, stem, p.cfg.OutputFormats)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInput, err)
		}
		p.log.Info("transcription saved", "files", paths)
	}
	return final, nil
}

// classifyTotalFailure promotes an every-chunk model-load failure to the
// raised model-error plane: the pipeline never actually started inference.
func classifyTotalFailure(results []transcriber.ChunkResult) error {
	if len(results) == 0 {
		return nil
	}
	for _, result := range results {
		if result.Status == transcriber.StatusOK {
			return nil
		}
		if !strings.Contains(result.Error, engine.ErrModelLoad.Error()) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrModel, results[0].Error)
}

func chunkDetails(results []transcriber.ChunkResult) []merger.ChunkDetail {
	details := make([]merger.ChunkDetail, 0, len(results))
	for _, result := range results {
		details = append(details, merger.ChunkDetail{
			ChunkID:        result.ChunkID,
			Status:         string(result.Status),
			SegmentCount:   len(result.Segments),
			ProcessingTime: result.ProcessingTime,
			Error:          result.Error,
		})
	}
	return details
}

// Warmup loads the configured model and runs a trivial inference against a
// synthetic silent buffer so the first real request skips the cold start.
// Failures must be logged by the caller but never prevent serving: the real
// request will surface the same failure with full context.
func (p *Pipeline) Warmup(ctx context.Context) error {
	silencePath := filepath.Join(os.TempDir(), fmt.Sprintf("warmup_%d.wav", os.Getpid()))
	if err := audio.WriteSilenceWAV(silencePath, 2.0, audio.SampleRate); err != nil {
		return fmt.Errorf("warmup: write silence: %w", err)
	}
	defer os.Remove(silencePath)

	eng, err := p.deps.Factory()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModel, err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			p.log.Warn("failed to close warm-up engine", "error", err)
		}
	}()

	opts := engine.Options{Language: p.cfg.Language, BeamSize: 1}
	if _, err := eng.TranscribeFile(ctx, silencePath, opts); err != nil {
		if errors.Is(err, engine.ErrModelLoad) {
			return fmt.Errorf("%w: %v", ErrModel, err)
		}
		return fmt.Errorf("warmup: %w", err)
	}
	p.log.Info("model warm-up complete", "model_size", p.cfg.ModelSize)

	if p.cfg.EnableDiarization {
		if err := diarize.Warmup(ctx, p.cfg.Python, p.cfg.HuggingFaceToken, p.log); err != nil {
			p.log.Warn("diarizer warm-up failed", "error", err)
		}
	}
	return nil
}
