package merger

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/keweikao/sales-ai-automation-V2/internal/engine"
	"github.com/keweikao/sales-ai-automation-V2/internal/transcriber"
)

// FinalTranscript is the pipeline's end product: ordered, deduplicated
// segments in global time plus the aggregates consumers key off.
type FinalTranscript struct {
	Segments          []engine.Segment   `json:"segments"`
	FullText          string             `json:"fullText"`
	TotalSegments     int                `json:"totalSegments"`
	TotalDuration     float64            `json:"totalDuration"`
	AverageConfidence float64            `json:"averageConfidence"`
	ChunksProcessed   int                `json:"chunksProcessed"`
	ChunksFailed      int                `json:"chunksFailed"`
	Metadata          ProcessingMetadata `json:"processingMetadata"`
}

// StageTiming records one pipeline stage's elapsed time.
type StageTiming struct {
	Stage   string  `json:"stage"`
	Seconds float64 `json:"seconds"`
	Status  string  `json:"status"`
}

// ChunkDetail summarises one chunk for consumers inspecting partial results.
type ChunkDetail struct {
	ChunkID        int     `json:"chunk_id"`
	Status         string  `json:"status"`
	SegmentCount   int     `json:"segment_count"`
	ProcessingTime float64 `json:"processing_time"`
	Error          string  `json:"error,omitempty"`
}

// ProcessingMetadata is filled by the orchestrator; the merger only carries
// it through.
type ProcessingMetadata struct {
	AudioPath     string            `json:"audio_path"`
	AudioDuration float64           `json:"audio_duration"`
	ModelSize     string            `json:"model_size"`
	Device        string            `json:"device"`
	Language      string            `json:"language"`
	Workers       int               `json:"workers"`
	ChunkCount    int               `json:"chunk_count"`
	StageTimings  []StageTiming     `json:"stage_timings,omitempty"`
	PipelineTime  float64           `json:"pipeline_time"`
	SpeedRatio    float64           `json:"speed_ratio"`
	ChunkDetails  []ChunkDetail     `json:"chunk_details,omitempty"`
	Generator     map[string]string `json:"generator,omitempty"`
}

// Merger assembles chunk results into a FinalTranscript.
type Merger struct {
	overlapDuration float64
	log             *slog.Logger
}

// New builds a Merger for the given overlap window.
func New(overlapDuration float64, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{
		overlapDuration: overlapDuration,
		log:             logger.With("component", "merger.Merger"),
	}
}

// Merge combines chunk results in ChunkID order, drops overlap duplicates,
// and computes the aggregates. Failed chunks are skipped without
// substitution; the time gap they leave is detectable via ChunksFailed.
//
// Overlap rule: for adjacent successful chunks (i, i+1), any segment of
// chunk i+1 starting before chunkStart+overlap is dropped — the tail of
// chunk i already covers that region with more acoustic context. Segments
// straddling the boundary are judged by their start alone and never
// clipped: one starting before the boundary is dropped whole.
//
// FullText joins the kept segment texts with a single space, a deliberate
// choice that reads awkwardly for Chinese text.
func (m *Merger) Merge(results []transcriber.ChunkResult) *FinalTranscript {
	sorted := append([]transcriber.ChunkResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkID < sorted[j].ChunkID })

	successByID := make(map[int]bool, len(sorted))
	for _, result := range sorted {
		successByID[result.ChunkID] = result.Status == transcriber.StatusOK
	}

	var (
		segments = make([]engine.Segment, 0)
		failed   int
		details  = make([]ChunkDetail, 0, len(sorted))
	)
	for _, result := range sorted {
		details = append(details, ChunkDetail{
			ChunkID:        result.ChunkID,
			Status:         string(result.Status),
			SegmentCount:   len(result.Segments),
			ProcessingTime: result.ProcessingTime,
			Error:          result.Error,
		})
		if result.Status != transcriber.StatusOK {
			failed++
			m.log.Warn("skipping failed chunk", "chunk_id", result.ChunkID, "error", result.Error)
			continue
		}

		dedupFrom := -1.0
		if m.overlapDuration > 0 && result.ChunkID > 0 && successByID[result.ChunkID-1] {
			dedupFrom = result.ChunkStart + m.overlapDuration
		}

		for _, seg := range result.Segments {
			if dedupFrom >= 0 && seg.Start < dedupFrom {
				m.log.Debug("dropping overlap duplicate",
					"chunk_id", result.ChunkID,
					"start", seg.Start,
					"boundary", dedupFrom,
				)
				continue
			}
			segments = append(segments, seg)
		}
	}

	final := &FinalTranscript{
		Segments:        segments,
		TotalSegments:   len(segments),
		ChunksProcessed: len(sorted) - failed,
		ChunksFailed:    failed,
	}

	texts := make([]string, 0, len(segments))
	confidence := 0.0
	for _, seg := range segments {
		texts = append(texts, strings.TrimSpace(seg.Text))
		confidence += seg.Confidence
	}
	final.FullText = strings.Join(texts, " ")
	if len(segments) > 0 {
		final.AverageConfidence = confidence / float64(len(segments))
		final.TotalDuration = segments[len(segments)-1].End
	}

	m.log.Info("merge complete",
		"segments", final.TotalSegments,
		"chunks_processed", final.ChunksProcessed,
		"chunks_failed", final.ChunksFailed,
		"total_duration", final.TotalDuration,
	)
	return final
}
