package vad

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keweikao/sales-ai-automation-V2/internal/audio"
)

// FrameDuration is the analysis resolution. 30 ms matches the frame size the
// silero family of detectors operates on.
const FrameDuration = 30 * time.Millisecond

// Interval is a detected region of speech in seconds from the start of the
// input. Intervals emitted by a Processor are non-overlapping and strictly
// increasing in Start.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the interval length in seconds.
func (i Interval) Duration() float64 {
	return i.End - i.Start
}

// Processor turns raw audio into ordered speech intervals.
type Processor struct {
	params Params
	pcm    audio.PCMReader
	log    *slog.Logger
}

// NewProcessor builds a Processor for the given parameter set. The PCM reader
// owns decoding; a decode failure is fatal to the caller.
func NewProcessor(params Params, pcm audio.PCMReader, logger *slog.Logger) (*Processor, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if pcm == nil {
		return nil, fmt.Errorf("vad: pcm reader is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		params: params,
		pcm:    pcm,
		log:    logger.With("component", "vad.Processor"),
	}, nil
}

// Params returns the parameter set the processor was built with.
func (p *Processor) Params() Params {
	return p.params
}

// Detect decodes path to mono 16 kHz and returns the ordered speech
// intervals. A zero-speech result is an empty slice, not an error.
func (p *Processor) Detect(ctx context.Context, path string) ([]Interval, error) {
	samples, err := p.pcm.ReadMono16k(ctx, path)
	if err != nil {
		return nil, err
	}
	intervals := p.DetectSamples(samples)

	speech := 0.0
	for _, iv := range intervals {
		speech += iv.Duration()
	}
	total := float64(len(samples)) / float64(audio.SampleRate)
	p.log.Info("speech detection complete",
		"intervals", len(intervals),
		"speech_seconds", speech,
		"total_seconds", total,
	)
	return intervals, nil
}

// DetectSamples runs detection over already-decoded mono 16 kHz samples.
// Deterministic: identical samples always yield identical intervals.
func (p *Processor) DetectSamples(samples []float32) []Interval {
	frameSize := int(FrameDuration.Seconds() * float64(audio.SampleRate))
	if len(samples) < frameSize {
		return nil
	}

	probs := frameProbabilities(samples, frameSize)

	// Short islands are dropped before merging: two sub-minimum bursts
	// separated by a short gap are noise, not speech to be joined.
	raw := thresholdRuns(probs, p.params.Threshold, FrameDuration.Seconds())
	kept := dropShortRuns(raw, float64(p.params.MinSpeechDurationMs)/1000.0)
	merged := mergeCloseRuns(kept, float64(p.params.MinSilenceDurationMs)/1000.0)

	total := float64(len(samples)) / float64(audio.SampleRate)
	return padAndClamp(merged, float64(p.params.SpeechPadMs)/1000.0, total)
}

// frameProbabilities maps each frame's mean-square energy to a pseudo-probability by
// normalising against the loudest frame in the file. A file whose peak energy
// sits below the noise floor yields all-zero probabilities.
func frameProbabilities(samples []float32, frameSize int) []float64 {
	const noiseFloor = 1e-4

	frameCount := len(samples) / frameSize
	energies := make([]float64, frameCount)
	peak := 0.0
	for i := 0; i < frameCount; i++ {
		frame := samples[i*frameSize : (i+1)*frameSize]
		energy := 0.0
		for _, s := range frame {
			energy += float64(s) * float64(s)
		}
		energies[i] = energy / float64(frameSize)
		if energies[i] > peak {
			peak = energies[i]
		}
	}

	probs := make([]float64, frameCount)
	if peak < noiseFloor {
		return probs
	}
	for i, energy := range energies {
		probs[i] = energy / peak
	}
	return probs
}

func thresholdRuns(probs []float64, threshold, frameSeconds float64) []Interval {
	var runs []Interval
	open := false
	start := 0.0
	for i, prob := range probs {
		t := float64(i) * frameSeconds
		if prob >= threshold {
			if !open {
				open = true
				start = t
			}
			continue
		}
		if open {
			runs = append(runs, Interval{Start: start, End: t})
			open = false
		}
	}
	if open {
		runs = append(runs, Interval{Start: start, End: float64(len(probs)) * frameSeconds})
	}
	return runs
}

func mergeCloseRuns(runs []Interval, minSilence float64) []Interval {
	if len(runs) == 0 {
		return nil
	}
	merged := []Interval{runs[0]}
	for _, run := range runs[1:] {
		last := &merged[len(merged)-1]
		if run.Start-last.End < minSilence {
			last.End = run.End
			continue
		}
		merged = append(merged, run)
	}
	return merged
}

func dropShortRuns(runs []Interval, minSpeech float64) []Interval {
	var kept []Interval
	for _, run := range runs {
		if run.Duration() >= minSpeech {
			kept = append(kept, run)
		}
	}
	return kept
}

// padAndClamp extends each interval symmetrically, clamps to the audio
// boundary, and coalesces any neighbours the padding made overlap.
func padAndClamp(runs []Interval, pad, total float64) []Interval {
	var out []Interval
	for _, run := range runs {
		iv := Interval{Start: run.Start - pad, End: run.End + pad}
		if iv.Start < 0 {
			iv.Start = 0
		}
		if iv.End > total {
			iv.End = total
		}
		if iv.End <= iv.Start {
			continue
		}
		if n := len(out); n > 0 && iv.Start <= out[n-1].End {
			if iv.End > out[n-1].End {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
