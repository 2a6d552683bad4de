package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keweikao/sales-ai-automation-V2/internal/audio"
	"github.com/keweikao/sales-ai-automation-V2/internal/chunker"
	"github.com/keweikao/sales-ai-automation-V2/internal/engine"
	"github.com/keweikao/sales-ai-automation-V2/internal/vad"
)

// ChunkStatus is the terminal state of one chunk's transcription.
type ChunkStatus string

const (
	StatusOK     ChunkStatus = "ok"
	StatusFailed ChunkStatus = "failed"
)

// ErrDeadlineExceeded is recorded on chunks whose jobs were never started
// because the request deadline expired.
var ErrDeadlineExceeded = errors.New("deadline exceeded before chunk started")

// ChunkResult carries one chunk's outcome. Segments are in global time: the
// worker shifts every engine timestamp by the chunk's start before emitting.
type ChunkResult struct {
	ChunkID             int              `json:"chunk_id"`
	Status              ChunkStatus      `json:"status"`
	ChunkStart          float64          `json:"chunk_start"`
	ChunkEnd            float64          `json:"chunk_end"`
	Segments            []engine.Segment `json:"segments"`
	DetectedLanguage    string           `json:"detected_language,omitempty"`
	LanguageProbability float64          `json:"language_probability,omitempty"`
	ProcessingTime      float64          `json:"processing_time"`
	Error               string           `json:"error,omitempty"`
}

// Config sizes the worker pool and decoding options.
type Config struct {
	MaxWorkers int
	Language   string
	BeamSize   int
	// RetryAttempts bounds re-runs of a failed engine call. Retries never
	// weaken failure isolation: an exhausted chunk still fails alone.
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// DefaultMaxWorkers returns the production pool size for a device. CPU
// inference scales to several int8 workers; GPU contention caps at two.
func DefaultMaxWorkers(device string) int {
	if device == "cuda" {
		return 2
	}
	return 6
}

// Validate applies defaults and rejects out-of-range values.
func (c *Config) Validate() error {
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("transcriber: max_workers must be >= 1, got %d", c.MaxWorkers)
	}
	if c.Language == "" {
		c.Language = "zh"
	}
	if c.BeamSize == 0 {
		c.BeamSize = engine.DefaultBeamSize
	}
	if c.BeamSize < 1 {
		return fmt.Errorf("transcriber: beam_size must be >= 1, got %d", c.BeamSize)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("transcriber: retry_attempts must be >= 0, got %d", c.RetryAttempts)
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	return nil
}

// Transcriber runs bounded-parallel inference over a chunk plan.
type Transcriber struct {
	cfg       Config
	factory   engine.Factory
	extractor audio.Extractor
	vadParams *vad.Params
	log       *slog.Logger
}

// New builds a Transcriber. vadParams, when non-nil, is forwarded into every
// engine call.
func New(cfg Config, factory engine.Factory, extractor audio.Extractor, vadParams *vad.Params, logger *slog.Logger) (*Transcriber, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("transcriber: engine factory is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("transcriber: audio extractor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{
		cfg:       cfg,
		factory:   factory,
		extractor: extractor,
		vadParams: vadParams,
		log:       logger.With("component", "transcriber.Transcriber"),
	}, nil
}

// TranscribeChunks processes every chunk and returns one result per chunk,
// sorted by ChunkID regardless of completion order. Single-chunk failures
// are recorded on the result, never raised; the only raised failure is a
// pool that cannot start (engine allocation / model load).
//
// The context carries the request deadline: once it expires, queued chunks
// are marked failed without starting, while in-flight inference is allowed
// to finish on a detached context.
func (t *Transcriber) TranscribeChunks(ctx context.Context, audioPath string, chunks []chunker.Chunk, tempDir string) ([]ChunkResult, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	workers := t.cfg.MaxWorkers
	if workers > len(chunks) {
		workers = len(chunks)
	}

	// Allocate one engine per worker up front. A failure here means the
	// pipeline cannot start at all.
	engines := make([]engine.Engine, 0, workers)
	for i := 0; i < workers; i++ {
		eng, err := t.factory()
		if err != nil {
			for _, open := range engines {
				_ = open.Close()
			}
			return nil, fmt.Errorf("transcriber: start worker %d: %w", i, err)
		}
		engines = append(engines, eng)
	}
	defer func() {
		for _, eng := range engines {
			if err := eng.Close(); err != nil {
				t.log.Warn("failed to close engine", "error", err)
			}
		}
	}()

	t.log.Info("starting parallel transcription",
		"chunks", len(chunks),
		"workers", workers,
	)

	jobs := make(chan chunker.Chunk)
	results := make(chan ChunkResult, len(chunks))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(eng engine.Engine) {
			defer wg.Done()
			for chunk := range jobs {
				if ctx.Err() != nil {
					results <- ChunkResult{
						ChunkID:    chunk.ChunkID,
						Status:     StatusFailed,
						ChunkStart: chunk.Start,
						ChunkEnd:   chunk.End,
						Error:      ErrDeadlineExceeded.Error(),
					}
					continue
				}
				results <- t.transcribeChunk(ctx, eng, audioPath, chunk, tempDir)
			}
		}(engines[i])
	}

	for _, chunk := range chunks {
		jobs <- chunk
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]ChunkResult, 0, len(chunks))
	for result := range results {
		out = append(out, result)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })

	failed := 0
	for _, result := range out {
		if result.Status == StatusFailed {
			failed++
		}
	}
	t.log.Info("parallel transcription finished",
		"chunks", len(out),
		"failed", failed,
	)
	return out, nil
}

// transcribeChunk extracts, transcribes, and rebases one chunk. The temp
// extract is removed on every exit path.
func (t *Transcriber) transcribeChunk(ctx context.Context, eng engine.Engine, audioPath string, chunk chunker.Chunk, tempDir string) ChunkResult {
	result := ChunkResult{
		ChunkID:    chunk.ChunkID,
		Status:     StatusFailed,
		ChunkStart: chunk.Start,
		ChunkEnd:   chunk.End,
	}
	started := time.Now()
	defer func() {
		result.ProcessingTime = time.Since(started).Seconds()
	}()

	// Inference must not be interrupted mid-utterance: once a chunk is
	// started it runs on a detached context even if the deadline passes.
	runCtx := context.WithoutCancel(ctx)

	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	extractPath := filepath.Join(tempDir, fmt.Sprintf("%s_chunk_%03d_%s.wav", stem, chunk.ChunkID, uuid.NewString()[:8]))
	defer func() {
		if err := os.Remove(extractPath); err != nil && !os.IsNotExist(err) {
			t.log.Warn("failed to remove chunk extract", "path", extractPath, "error", err)
		}
	}()

	if err := t.extractor.Extract(runCtx, audioPath, chunk.Start, chunk.Duration(), extractPath); err != nil {
		result.Error = err.Error()
		t.log.Error("chunk extraction failed", "chunk_id", chunk.ChunkID, "error", err)
		return result
	}

	opts := engine.Options{
		Language: t.cfg.Language,
		BeamSize: t.cfg.BeamSize,
		VAD:      t.vadParams,
	}

	var (
		engineResult engine.Result
		err          error
	)
	for attempt := 0; ; attempt++ {
		engineResult, err = eng.TranscribeFile(runCtx, extractPath, opts)
		if err == nil || errors.Is(err, engine.ErrModelLoad) || attempt >= t.cfg.RetryAttempts {
			break
		}
		delay := t.cfg.RetryBaseDelay << attempt
		t.log.Warn("chunk transcription failed, retrying",
			"chunk_id", chunk.ChunkID,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		time.Sleep(delay)
	}
	if err != nil {
		result.Error = err.Error()
		t.log.Error("chunk transcription failed", "chunk_id", chunk.ChunkID, "error", err)
		return result
	}

	segments := make([]engine.Segment, 0, len(engineResult.Segments))
	for _, seg := range engineResult.Segments {
		seg.Start += chunk.Start
		seg.End += chunk.Start
		segments = append(segments, seg)
	}

	result.Status = StatusOK
	result.Segments = segments
	result.DetectedLanguage = engineResult.Language
	result.LanguageProbability = engineResult.LanguageProbability

	t.log.Info("chunk transcribed",
		"chunk_id", chunk.ChunkID,
		"segments", len(segments),
		"language", result.DetectedLanguage,
	)
	return result
}
