package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Recorder tracks pipeline-level telemetry that can be exposed by the
// long-lived server mode.
type Recorder struct {
	log *slog.Logger

	totalRuns           atomic.Uint64
	activeRuns          atomic.Int64
	totalChunks         atomic.Uint64
	totalChunkFailures  atomic.Uint64
	totalSegments       atomic.Uint64
	totalAudioMillis    atomic.Uint64
	totalPipelineMillis atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	TotalRuns           uint64  `json:"total_runs"`
	ActiveRuns          int64   `json:"active_runs"`
	TotalChunks         uint64  `json:"total_chunks"`
	TotalChunkFailures  uint64  `json:"total_chunk_failures"`
	TotalSegments       uint64  `json:"total_segments"`
	TotalAudioSeconds   float64 `json:"total_audio_seconds"`
	TotalPipelineSecond float64 `json:"total_pipeline_seconds"`
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log: logger.With("component", "telemetry.Recorder"),
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalRuns:           r.totalRuns.Load(),
		ActiveRuns:          r.activeRuns.Load(),
		TotalChunks:         r.totalChunks.Load(),
		TotalChunkFailures:  r.totalChunkFailures.Load(),
		TotalSegments:       r.totalSegments.Load(),
		TotalAudioSeconds:   float64(r.totalAudioMillis.Load()) / 1000,
		TotalPipelineSecond: float64(r.totalPipelineMillis.Load()) / 1000,
	}
}

// RunMetrics accumulates statistics for a single pipeline run.
type RunMetrics struct {
	recorder *Recorder
	log      *slog.Logger

	audioPath string
	started   time.Time

	chunks        int
	chunkFailures int
	segments      int
	audioSeconds  float64
	closed        atomic.Bool
}

// StartRun initialises a RunMetrics instance bound to the recorder.
func (r *Recorder) StartRun(audioPath string) *RunMetrics {
	if r == nil {
		return nil
	}
	r.totalRuns.Add(1)
	r.activeRuns.Add(1)
	return &RunMetrics{
		recorder:  r,
		log:       r.log.With("audio_path", audioPath),
		audioPath: audioPath,
		started:   time.Now(),
	}
}

// RecordChunks updates counters after the transcription stage.
func (m *RunMetrics) RecordChunks(total, failed int) {
	if m == nil {
		return
	}
	m.chunks = total
	m.chunkFailures = failed
	m.recorder.totalChunks.Add(uint64(total))
	m.recorder.totalChunkFailures.Add(uint64(failed))
}

// RecordResult updates counters after the merge stage.
func (m *RunMetrics) RecordResult(segments int, audioSeconds float64) {
	if m == nil {
		return
	}
	m.segments = segments
	m.audioSeconds = audioSeconds
	m.recorder.totalSegments.Add(uint64(segments))
	if audioSeconds > 0 {
		m.recorder.totalAudioMillis.Add(uint64(audioSeconds * 1000))
	}
}

// Finish closes the run and emits a summary log line. Safe to call more
// than once; only the first call is recorded.
func (m *RunMetrics) Finish(err error) {
	if m == nil || !m.closed.CompareAndSwap(false, true) {
		return
	}
	elapsed := time.Since(m.started)
	m.recorder.activeRuns.Add(-1)
	m.recorder.totalPipelineMillis.Add(uint64(elapsed.Milliseconds()))

	if err != nil {
		m.log.Error("pipeline run failed",
			"elapsed", elapsed,
			"error", err,
		)
		return
	}
	m.log.Info("pipeline run finished",
		"elapsed", elapsed,
		"chunks", m.chunks,
		"chunk_failures", m.chunkFailures,
		"segments", m.segments,
		"audio_seconds", m.audioSeconds,
	)
}
