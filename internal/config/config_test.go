package config_test

import (
	"strings"
	"testing"

	"github.com/keweikao/sales-ai-automation-V2/internal/config"
	"github.com/keweikao/sales-ai-automation-V2/internal/vad"
)

func TestValidateDefaults(t *testing.T) {
	var cfg config.Config
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if cfg.ModelSize != "medium" {
		t.Fatalf("expected model size medium, got %q", cfg.ModelSize)
	}
	if cfg.Device != "cpu" || cfg.ComputeType != "int8" {
		t.Fatalf("unexpected device/compute defaults: %q/%q", cfg.Device, cfg.ComputeType)
	}
	if cfg.MaxWorkers != 6 {
		t.Fatalf("expected 6 workers on cpu, got %d", cfg.MaxWorkers)
	}
	if cfg.Language != config.DefaultLanguage {
		t.Fatalf("expected language %q, got %q", config.DefaultLanguage, cfg.Language)
	}
	if cfg.VADPreset != config.DefaultVADPreset {
		t.Fatalf("expected preset %q, got %q", config.DefaultVADPreset, cfg.VADPreset)
	}
	if cfg.TargetChunkDuration != 600 || cfg.MaxChunkDuration != 900 || cfg.OverlapDuration != 2 {
		t.Fatalf("unexpected chunk defaults: %+v", cfg)
	}
	if len(cfg.OutputFormats) != 2 || cfg.OutputFormats[0] != "txt" || cfg.OutputFormats[1] != "json" {
		t.Fatalf("unexpected output formats: %v", cfg.OutputFormats)
	}

	want := vad.Params{Threshold: 0.5, MinSpeechDurationMs: 250, MinSilenceDurationMs: 500, SpeechPadMs: 400}
	if cfg.VAD() != want {
		t.Fatalf("expected meeting VAD params, got %+v", cfg.VAD())
	}
}

func TestValidateCudaWorkerDefault(t *testing.T) {
	cfg := config.Config{Device: "cuda", ComputeType: "float16"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if cfg.MaxWorkers != 2 {
		t.Fatalf("expected 2 workers on cuda, got %d", cfg.MaxWorkers)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.Config
		wantErr string
	}{
		{"unknown model", config.Config{ModelSize: "huge"}, "unknown model size"},
		{"float16 on cpu", config.Config{ComputeType: "float16"}, "not supported on cpu"},
		{"unknown preset", config.Config{VADPreset: "stadium"}, "unknown preset"},
		{"unknown format", config.Config{OutputFormats: []string{"pdf"}}, "unknown output format"},
		{"negative workers", config.Config{MaxWorkers: -2}, "max_workers"},
		{"bad chunk sizing", config.Config{TargetChunkDuration: 600, MaxChunkDuration: 100}, "max_chunk_duration"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidateRejectsUnknownVADParameter(t *testing.T) {
	cfg := config.Config{
		VADParameters: map[string]any{"window_size_samples": 512},
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown parameter") {
		t.Fatalf("expected unknown VAD parameter to be rejected, got %v", err)
	}
}

func TestValidateExplicitVADParametersOverridePreset(t *testing.T) {
	cfg := config.Config{
		VADPreset:     "noisy",
		VADParameters: map[string]any{"threshold": 0.9},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if cfg.VAD().Threshold != 0.9 {
		t.Fatalf("explicit parameters must win over the preset: %+v", cfg.VAD())
	}
	if cfg.VAD().MinSilenceDurationMs != 800 {
		t.Fatalf("untouched fields must keep the preset values: %+v", cfg.VAD())
	}
}
