package vad

import (
	"math"
	"testing"
)

const sampleRate = 16000

// tone appends seconds of constant-amplitude samples.
func tone(samples []float32, seconds, amp float64) []float32 {
	n := int(seconds * sampleRate)
	for i := 0; i < n; i++ {
		samples = append(samples, float32(amp))
	}
	return samples
}

func meetingParams(t *testing.T) Params {
	t.Helper()
	params, err := PresetParams("meeting")
	if err != nil {
		t.Fatalf("PresetParams returned error: %v", err)
	}
	return params
}

func detect(t *testing.T, params Params, samples []float32) []Interval {
	t.Helper()
	p := &Processor{params: params}
	return p.DetectSamples(samples)
}

func assertIntervalsValid(t *testing.T, intervals []Interval, total float64) {
	t.Helper()
	for i, iv := range intervals {
		if iv.Duration() <= 0 {
			t.Fatalf("interval %d has non-positive duration: %+v", i, iv)
		}
		if iv.Start < 0 || iv.End > total+1e-9 {
			t.Fatalf("interval %d escapes [0, %v]: %+v", i, total, iv)
		}
		if i > 0 {
			if intervals[i-1].End > iv.Start {
				t.Fatalf("intervals %d and %d overlap: %+v %+v", i-1, i, intervals[i-1], iv)
			}
			if intervals[i-1].Start >= iv.Start {
				t.Fatalf("interval starts not strictly increasing at %d", i)
			}
		}
	}
}

func approx(t *testing.T, want, got float64, label string) {
	t.Helper()
	if math.Abs(want-got) > 1e-6 {
		t.Fatalf("unexpected %s: want %v, got %v", label, want, got)
	}
}

func TestDetectSilenceYieldsNothing(t *testing.T) {
	samples := tone(nil, 10, 0)
	intervals := detect(t, meetingParams(t), samples)
	if len(intervals) != 0 {
		t.Fatalf("expected no intervals for silence, got %v", intervals)
	}
}

func TestDetectTwoBursts(t *testing.T) {
	var samples []float32
	samples = tone(samples, 1.8, 0.5)
	samples = tone(samples, 0.9, 0)
	samples = tone(samples, 2.1, 0.5)
	samples = tone(samples, 1.2, 0)

	intervals := detect(t, meetingParams(t), samples)
	assertIntervalsValid(t, intervals, 6.0)
	if len(intervals) != 2 {
		t.Fatalf("expected 2 intervals, got %v", intervals)
	}
	approx(t, 0.0, intervals[0].Start, "first start (pad clamped)")
	approx(t, 2.2, intervals[0].End, "first end (padded)")
	approx(t, 2.3, intervals[1].Start, "second start (padded)")
	approx(t, 5.2, intervals[1].End, "second end (padded)")
}

func TestDetectMergesShortSilence(t *testing.T) {
	params := Params{Threshold: 0.5, MinSpeechDurationMs: 250, MinSilenceDurationMs: 500, SpeechPadMs: 0}

	var samples []float32
	samples = tone(samples, 1.8, 0.5)
	samples = tone(samples, 0.3, 0)
	samples = tone(samples, 1.8, 0.5)
	samples = tone(samples, 0.9, 0)

	intervals := detect(t, params, samples)
	if len(intervals) != 1 {
		t.Fatalf("expected short silence to merge, got %v", intervals)
	}
	approx(t, 0.0, intervals[0].Start, "merged start")
	approx(t, 3.9, intervals[0].End, "merged end")
}

func TestDetectDropsShortIslands(t *testing.T) {
	var samples []float32
	samples = tone(samples, 0.9, 0)
	samples = tone(samples, 0.12, 0.5)
	samples = tone(samples, 2.0, 0)

	intervals := detect(t, meetingParams(t), samples)
	if len(intervals) != 0 {
		t.Fatalf("expected short island to be dropped, got %v", intervals)
	}
}

func TestDetectDropsAdjacentShortIslands(t *testing.T) {
	// Two sub-minimum bursts separated by a sub-minimum gap must NOT be
	// merged into a surviving run: islands are dropped before merging.
	var samples []float32
	samples = tone(samples, 0.9, 0)
	samples = tone(samples, 0.12, 0.5)
	samples = tone(samples, 0.3, 0)
	samples = tone(samples, 0.12, 0.5)
	samples = tone(samples, 0.9, 0)

	intervals := detect(t, meetingParams(t), samples)
	if len(intervals) != 0 {
		t.Fatalf("expected adjacent short islands to be dropped, got %v", intervals)
	}
}

func TestDetectCoalescesPaddingOverlap(t *testing.T) {
	var samples []float32
	samples = tone(samples, 1.8, 0.5)
	samples = tone(samples, 0.6, 0)
	samples = tone(samples, 1.8, 0.5)
	samples = tone(samples, 0.6, 0)

	intervals := detect(t, meetingParams(t), samples)
	assertIntervalsValid(t, intervals, 4.8)
	if len(intervals) != 1 {
		t.Fatalf("expected padded neighbours to coalesce, got %v", intervals)
	}
	approx(t, 0.0, intervals[0].Start, "coalesced start")
	approx(t, 4.6, intervals[0].End, "coalesced end")
}

func TestDetectDeterministic(t *testing.T) {
	var samples []float32
	samples = tone(samples, 1.8, 0.5)
	samples = tone(samples, 0.9, 0)
	samples = tone(samples, 2.1, 0.3)

	first := detect(t, meetingParams(t), samples)
	second := detect(t, meetingParams(t), samples)
	if len(first) != len(second) {
		t.Fatalf("detection not deterministic: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("detection not deterministic at %d: %v vs %v", i, first[i], second[i])
		}
	}
}
