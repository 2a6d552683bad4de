package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader assembles a Config from environment variables and an optional YAML
// file. Tests can override Lookup to inject deterministic maps.
//
// Precedence, lowest to highest: built-in defaults, environment variables,
// YAML file, explicit caller overrides (CLI flags / library arguments).
type Loader struct {
	Lookup func(string) (string, bool)
	// File, when set, is a YAML configuration file applied over the
	// environment. Unknown fields in the file are rejected.
	File string
}

// Load retrieves the pipeline configuration. The returned Config is not yet
// validated: callers apply their own overrides and then call Validate.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	var cfg Config
	overrideString(l.Lookup, "WHISPER_MODEL_SIZE", &cfg.ModelSize)
	overrideString(l.Lookup, "WHISPER_DEVICE", &cfg.Device)
	overrideString(l.Lookup, "WHISPER_COMPUTE_TYPE", &cfg.ComputeType)
	overrideString(l.Lookup, "VAD_PRESET", &cfg.VADPreset)
	overrideString(l.Lookup, "TRANSCRIBE_LANGUAGE", &cfg.Language)
	overrideString(l.Lookup, "TRANSCRIBE_OUTPUT_DIR", &cfg.OutputDir)
	overrideString(l.Lookup, "TRANSCRIBE_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "TRANSCRIBE_PYTHON", &cfg.Python)
	overrideString(l.Lookup, "HUGGINGFACE_TOKEN", &cfg.HuggingFaceToken)
	overrideString(l.Lookup, "SERVER_LISTEN_ADDR", &cfg.ListenAddr)

	if err := overrideInt(l.Lookup, "TRANSCRIBE_WORKERS", &cfg.MaxWorkers); err != nil {
		return Config{}, err
	}
	if err := overrideBool(l.Lookup, "ENABLE_DIARIZATION", &cfg.EnableDiarization); err != nil {
		return Config{}, err
	}
	if err := overrideBool(l.Lookup, "TRANSCRIBE_STUB_ENGINE", &cfg.UseStubEngine); err != nil {
		return Config{}, err
	}

	if l.File != "" {
		if err := applyFile(l.File, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// applyFile decodes a YAML file over cfg. Decoding is strict: fields the
// Config does not declare are a configuration error.
func applyFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s must be an integer, got %q", key, value)
	}
	*target = parsed
	return nil
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s must be a boolean, got %q", key, value)
	}
	*target = parsed
	return nil
}
