package config

import (
	"fmt"
	"strings"

	"github.com/keweikao/sales-ai-automation-V2/internal/chunker"
	"github.com/keweikao/sales-ai-automation-V2/internal/engine"
	"github.com/keweikao/sales-ai-automation-V2/internal/merger"
	"github.com/keweikao/sales-ai-automation-V2/internal/transcriber"
	"github.com/keweikao/sales-ai-automation-V2/internal/vad"
)

// Defaults applied by Validate.
const (
	DefaultVADPreset  = "meeting"
	DefaultLanguage   = "zh"
	DefaultLogLevel   = "info"
	DefaultListenAddr = "0.0.0.0:8080"
)

// Config is the single immutable configuration record passed to the
// orchestrator. Child stages receive only the sub-fields they need.
type Config struct {
	ModelSize   string `yaml:"model_size"`
	Device      string `yaml:"device"`
	ComputeType string `yaml:"compute_type"`
	MaxWorkers  int    `yaml:"max_workers"`

	// VADPreset selects a tuned parameter set; VADParameters, when
	// present, overrides it field by field. Unknown keys are rejected.
	VADPreset     string         `yaml:"vad_preset"`
	VADParameters map[string]any `yaml:"vad_parameters"`

	TargetChunkDuration float64 `yaml:"target_chunk_duration"`
	MaxChunkDuration    float64 `yaml:"max_chunk_duration"`
	MinChunkDuration    float64 `yaml:"min_chunk_duration"`
	OverlapDuration     float64 `yaml:"overlap_duration"`

	Language string `yaml:"language"`
	BeamSize int    `yaml:"beam_size"`

	OutputFormats []string `yaml:"output_formats"`
	OutputDir     string   `yaml:"output_dir"`

	LogLevel      string `yaml:"log_level"`
	Python        string `yaml:"python"`
	UseStubEngine bool   `yaml:"use_stub_engine"`

	EnableDiarization bool   `yaml:"enable_diarization"`
	HuggingFaceToken  string `yaml:"-"`

	ListenAddr string `yaml:"listen_addr"`

	vadParams vad.Params
	resolved  bool
}

// Validate applies defaults, resolves the VAD parameter set, and rejects
// invalid values. It must be called before any accessor.
func (c *Config) Validate() error {
	if c.VADPreset == "" {
		c.VADPreset = DefaultVADPreset
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if len(c.OutputFormats) == 0 {
		c.OutputFormats = []string{merger.FormatTXT, merger.FormatJSON}
	}
	if c.TargetChunkDuration == 0 {
		c.TargetChunkDuration = chunker.DefaultConfig().TargetChunkDuration
	}
	if c.MaxChunkDuration == 0 {
		c.MaxChunkDuration = chunker.DefaultConfig().MaxChunkDuration
	}
	if c.MinChunkDuration == 0 {
		c.MinChunkDuration = chunker.DefaultConfig().MinChunkDuration
	}
	if c.OverlapDuration == 0 {
		c.OverlapDuration = chunker.DefaultConfig().OverlapDuration
	}

	model := c.Model()
	if err := model.Validate(); err != nil {
		return err
	}
	c.ModelSize = model.ModelSize
	c.Device = model.Device
	c.ComputeType = model.ComputeType
	c.Python = model.Python

	if c.MaxWorkers == 0 {
		c.MaxWorkers = transcriber.DefaultMaxWorkers(c.Device)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("config: max_workers must be >= 1, got %d", c.MaxWorkers)
	}
	if c.BeamSize == 0 {
		c.BeamSize = engine.DefaultBeamSize
	}
	if c.BeamSize < 1 {
		return fmt.Errorf("config: beam_size must be >= 1, got %d", c.BeamSize)
	}

	if err := c.Chunker().Validate(); err != nil {
		return err
	}

	for _, format := range c.OutputFormats {
		if !merger.ValidFormat(format) {
			return fmt.Errorf("config: unknown output format %q (expected one of %s)",
				format, strings.Join(merger.FormatNames(), ", "))
		}
	}

	params, err := vad.PresetParams(c.VADPreset)
	if err != nil {
		return err
	}
	if len(c.VADParameters) > 0 {
		params, err = params.Apply(c.VADParameters)
		if err != nil {
			return err
		}
	}
	c.vadParams = params
	c.resolved = true
	return nil
}

// VAD returns the resolved speech-detection parameter set.
func (c *Config) VAD() vad.Params {
	if !c.resolved {
		panic("config: VAD called before Validate")
	}
	return c.vadParams
}

// Model returns the engine sub-configuration.
func (c *Config) Model() engine.ModelConfig {
	return engine.ModelConfig{
		ModelSize:   c.ModelSize,
		Device:      c.Device,
		ComputeType: c.ComputeType,
		Python:      c.Python,
	}
}

// Chunker returns the chunk sizing sub-configuration.
func (c *Config) Chunker() chunker.Config {
	return chunker.Config{
		TargetChunkDuration: c.TargetChunkDuration,
		MaxChunkDuration:    c.MaxChunkDuration,
		MinChunkDuration:    c.MinChunkDuration,
		OverlapDuration:     c.OverlapDuration,
	}
}

// Transcriber returns the worker pool sub-configuration.
func (c *Config) Transcriber() transcriber.Config {
	return transcriber.Config{
		MaxWorkers:    c.MaxWorkers,
		Language:      c.Language,
		BeamSize:      c.BeamSize,
		RetryAttempts: 1,
	}
}
