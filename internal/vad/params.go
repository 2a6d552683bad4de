package vad

import (
	"fmt"
	"sort"
	"strings"
)

// Params is the curated speech-detection parameter set. It is also the exact
// set forwarded into the inner ASR engine's VAD filter; anything outside
// these four knobs is rejected at configuration time.
type Params struct {
	// Threshold is the per-frame speech probability decision threshold.
	Threshold float64 `json:"threshold" yaml:"threshold"`
	// MinSpeechDurationMs discards speech islands shorter than this.
	MinSpeechDurationMs int `json:"min_speech_duration_ms" yaml:"min_speech_duration_ms"`
	// MinSilenceDurationMs merges speech separated by a shorter silence.
	MinSilenceDurationMs int `json:"min_silence_duration_ms" yaml:"min_silence_duration_ms"`
	// SpeechPadMs symmetrically extends each detected segment.
	SpeechPadMs int `json:"speech_pad_ms" yaml:"speech_pad_ms"`
}

// Validate rejects out-of-range values.
func (p Params) Validate() error {
	if p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("vad: threshold must be in [0, 1], got %v", p.Threshold)
	}
	if p.MinSpeechDurationMs < 0 {
		return fmt.Errorf("vad: min_speech_duration_ms must be >= 0, got %d", p.MinSpeechDurationMs)
	}
	if p.MinSilenceDurationMs < 0 {
		return fmt.Errorf("vad: min_silence_duration_ms must be >= 0, got %d", p.MinSilenceDurationMs)
	}
	if p.SpeechPadMs < 0 {
		return fmt.Errorf("vad: speech_pad_ms must be >= 0, got %d", p.SpeechPadMs)
	}
	return nil
}

// Presets tuned to conversational recordings. "meeting" is the default and
// matches multi-speaker sales calls; "presentation" tolerates longer pauses
// from a single speaker; "noisy" raises the bar against background noise.
var presets = map[string]Params{
	"meeting": {
		Threshold:            0.5,
		MinSpeechDurationMs:  250,
		MinSilenceDurationMs: 500,
		SpeechPadMs:          400,
	},
	"presentation": {
		Threshold:            0.6,
		MinSpeechDurationMs:  500,
		MinSilenceDurationMs: 1000,
		SpeechPadMs:          300,
	},
	"noisy": {
		Threshold:            0.7,
		MinSpeechDurationMs:  500,
		MinSilenceDurationMs: 800,
		SpeechPadMs:          500,
	},
	"default": {
		Threshold:            0.5,
		MinSpeechDurationMs:  250,
		MinSilenceDurationMs: 500,
		SpeechPadMs:          400,
	},
}

// PresetParams resolves a preset name to its parameter set.
func PresetParams(name string) (Params, error) {
	params, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Params{}, fmt.Errorf("vad: unknown preset %q (expected one of %s)", name, strings.Join(PresetNames(), ", "))
	}
	return params, nil
}

// PresetNames lists the accepted preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParamsFromMap builds Params from a free-form key/value map over the
// default preset. Any key outside the curated set is rejected: passing an
// unrecognised engine knob is a configuration error, never a silent fallback.
func ParamsFromMap(raw map[string]any) (Params, error) {
	return presets["default"].Apply(raw)
}

// Apply overrides the receiver field by field from a free-form map, with the
// same closed-set key checking as ParamsFromMap.
func (p Params) Apply(raw map[string]any) (Params, error) {
	params := p
	for key, value := range raw {
		switch key {
		case "threshold":
			v, err := toFloat(value)
			if err != nil {
				return Params{}, fmt.Errorf("vad: parameter %q: %w", key, err)
			}
			params.Threshold = v
		case "min_speech_duration_ms":
			v, err := toInt(value)
			if err != nil {
				return Params{}, fmt.Errorf("vad: parameter %q: %w", key, err)
			}
			params.MinSpeechDurationMs = v
		case "min_silence_duration_ms":
			v, err := toInt(value)
			if err != nil {
				return Params{}, fmt.Errorf("vad: parameter %q: %w", key, err)
			}
			params.MinSilenceDurationMs = v
		case "speech_pad_ms":
			v, err := toInt(value)
			if err != nil {
				return Params{}, fmt.Errorf("vad: parameter %q: %w", key, err)
			}
			params.SpeechPadMs = v
		default:
			return Params{}, fmt.Errorf("vad: unknown parameter %q", key)
		}
	}
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", value)
	}
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("expected an integer, got %v", v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", value)
	}
}
