package chunker

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/keweikao/sales-ai-automation-V2/internal/vad"
)

const (
	// searchHalfWidth bounds how far a split point may drift from the
	// target while hunting for a silence gap.
	searchHalfWidth = 30.0
	// gapWeight trades gap length against distance from the target when
	// scoring candidate split points.
	gapWeight = 10.0
)

// Chunk is one contiguous slice of the input timeline, processed as a single
// unit by the transcriber.
type Chunk struct {
	ChunkID int     `json:"chunk_id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	// SpeechIntervals holds the detected speech inside [Start, End),
	// rebased to chunk-local time.
	SpeechIntervals []vad.Interval `json:"speech_intervals,omitempty"`
	HasOverlapStart bool           `json:"has_overlap_start"`
	HasOverlapEnd   bool           `json:"has_overlap_end"`
}

// Duration returns the chunk length in seconds.
func (c Chunk) Duration() float64 {
	return c.End - c.Start
}

// Config controls chunk sizing.
type Config struct {
	// TargetChunkDuration is the preferred chunk length in seconds.
	TargetChunkDuration float64
	// MaxChunkDuration is a hard ceiling; no chunk may exceed it.
	MaxChunkDuration float64
	// MinChunkDuration: a trailing remainder shorter than this is absorbed
	// into the previous chunk when doing so stays under the ceiling.
	MinChunkDuration float64
	// OverlapDuration is the shared tail/head between adjacent chunks.
	OverlapDuration float64
}

// DefaultConfig returns the production chunk sizing.
func DefaultConfig() Config {
	return Config{
		TargetChunkDuration: 600,
		MaxChunkDuration:    900,
		MinChunkDuration:    300,
		OverlapDuration:     2,
	}
}

// Validate rejects inconsistent sizing.
func (c Config) Validate() error {
	if c.TargetChunkDuration <= 0 {
		return fmt.Errorf("chunker: target_chunk_duration must be positive, got %v", c.TargetChunkDuration)
	}
	if c.MaxChunkDuration < c.TargetChunkDuration {
		return fmt.Errorf("chunker: max_chunk_duration %v is below target %v", c.MaxChunkDuration, c.TargetChunkDuration)
	}
	if c.MinChunkDuration < 0 || c.MinChunkDuration > c.TargetChunkDuration {
		return fmt.Errorf("chunker: min_chunk_duration %v must be in [0, target]", c.MinChunkDuration)
	}
	if c.OverlapDuration < 0 || c.OverlapDuration >= c.TargetChunkDuration {
		return fmt.Errorf("chunker: overlap_duration %v must be in [0, target)", c.OverlapDuration)
	}
	return nil
}

// Chunker partitions the timeline at natural silences.
type Chunker struct {
	cfg Config
	log *slog.Logger
}

// New builds a Chunker.
func New(cfg Config, logger *slog.Logger) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{cfg: cfg, log: logger.With("component", "chunker.Chunker")}, nil
}

// Plan covers [0, totalDuration) with contiguous chunks, preferring split
// points inside silence gaps between the given speech intervals. Empty
// intervals yield a plan driven purely by the target duration.
func (c *Chunker) Plan(intervals []vad.Interval, totalDuration float64) ([]Chunk, error) {
	if totalDuration <= 0 {
		return nil, fmt.Errorf("chunker: total duration must be positive, got %v", totalDuration)
	}

	if totalDuration <= c.cfg.TargetChunkDuration {
		c.log.Info("audio fits in a single chunk", "duration", totalDuration)
		return []Chunk{{
			ChunkID:         0,
			Start:           0,
			End:             totalDuration,
			SpeechIntervals: rebase(intervals, 0, totalDuration),
		}}, nil
	}

	var chunks []Chunk
	current := 0.0
	for current < totalDuration {
		split := c.selectSplit(intervals, current, totalDuration)

		// Absorb a trailing remainder too short to stand alone.
		if remaining := totalDuration - split; remaining > 0 &&
			remaining < c.cfg.MinChunkDuration &&
			totalDuration-current <= c.cfg.MaxChunkDuration {
			split = totalDuration
		}

		chunks = append(chunks, Chunk{
			ChunkID:         len(chunks),
			Start:           current,
			End:             split,
			SpeechIntervals: rebase(intervals, current, split),
			HasOverlapStart: len(chunks) > 0,
			HasOverlapEnd:   split < totalDuration,
		})

		if split >= totalDuration {
			break
		}
		current = split - c.cfg.OverlapDuration
	}

	c.log.Info("chunk plan created", "chunks", len(chunks), "duration", totalDuration)
	for _, chunk := range chunks {
		c.log.Debug("planned chunk",
			"chunk_id", chunk.ChunkID,
			"start", chunk.Start,
			"end", chunk.End,
			"speech_intervals", len(chunk.SpeechIntervals),
		)
	}
	return chunks, nil
}

// selectSplit picks the end of the chunk starting at current. Candidates in
// the search window that land inside a silence gap are scored by
// gapDuration*gapWeight - |candidate - target|; without any gap the split
// falls back to min(target, window end).
func (c *Chunker) selectSplit(intervals []vad.Interval, current, totalDuration float64) float64 {
	target := current + c.cfg.TargetChunkDuration
	if target >= totalDuration {
		return totalDuration
	}

	lo := math.Max(target-searchHalfWidth, current+c.cfg.OverlapDuration)
	hi := math.Min(current+c.cfg.MaxChunkDuration, target+searchHalfWidth)
	hi = math.Min(hi, totalDuration)

	best := math.Inf(-1)
	split := -1.0
	for i := 0; i+1 < len(intervals); i++ {
		gapStart := intervals[i].End
		gapEnd := intervals[i+1].Start
		if gapEnd <= gapStart || gapEnd < lo || gapStart > hi {
			continue
		}
		candidate := clamp((gapStart+gapEnd)/2, math.Max(lo, gapStart), math.Min(hi, gapEnd))
		score := (gapEnd-gapStart)*gapWeight - math.Abs(candidate-target)
		if score > best {
			best = score
			split = candidate
		}
	}

	if split < 0 {
		split = math.Min(target, hi)
	}
	return split
}

// rebase returns the intervals intersecting [start, end), shifted to
// chunk-local time and clipped at the chunk boundary.
func rebase(intervals []vad.Interval, start, end float64) []vad.Interval {
	var out []vad.Interval
	for _, iv := range intervals {
		if iv.End <= start || iv.Start >= end {
			continue
		}
		local := vad.Interval{
			Start: math.Max(iv.Start, start) - start,
			End:   math.Min(iv.End, end) - start,
		}
		if local.End > local.Start {
			out = append(out, local)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
