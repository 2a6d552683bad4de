package engine

import (
	"fmt"
	"strings"
)

// Defaults for the inference engine.
const (
	DefaultModelSize   = "medium"
	DefaultDevice      = "cpu"
	DefaultComputeType = "int8"
	DefaultBeamSize    = 5
)

var (
	modelSizes   = []string{"tiny", "base", "small", "medium", "large-v3"}
	devices      = []string{"cpu", "cuda"}
	computeTypes = []string{"int8", "float16", "float32"}
)

// ModelConfig selects the Whisper model and how it runs.
type ModelConfig struct {
	ModelSize   string
	Device      string
	ComputeType string
	// Python is the interpreter used to drive the faster-whisper helper.
	Python string
}

// Validate applies defaults and rejects invalid or incompatible values.
func (c *ModelConfig) Validate() error {
	if c.ModelSize == "" {
		c.ModelSize = DefaultModelSize
	}
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if c.ComputeType == "" {
		c.ComputeType = DefaultComputeType
	}
	if c.Python == "" {
		c.Python = "python3"
	}

	if !contains(modelSizes, c.ModelSize) {
		return fmt.Errorf("engine: unknown model size %q (expected one of %s)", c.ModelSize, strings.Join(modelSizes, ", "))
	}
	if !contains(devices, c.Device) {
		return fmt.Errorf("engine: unknown device %q (expected one of %s)", c.Device, strings.Join(devices, ", "))
	}
	if !contains(computeTypes, c.ComputeType) {
		return fmt.Errorf("engine: unknown compute type %q (expected one of %s)", c.ComputeType, strings.Join(computeTypes, ", "))
	}
	if c.Device == "cpu" && c.ComputeType == "float16" {
		return fmt.Errorf("engine: compute type float16 is not supported on cpu")
	}
	return nil
}

// ModelSizes lists the accepted model sizes.
func ModelSizes() []string {
	return append([]string(nil), modelSizes...)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
