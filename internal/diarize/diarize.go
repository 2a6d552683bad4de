// Package diarize owns the optional speaker-diarization warm-up. Diarization
// is not part of the transcription core: its only responsibility here is to
// pre-load models in a long-lived process so the first real request does not
// pay the download. Its absence never blocks transcription.
package diarize

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

//go:embed assets/prewarm_diarizer.py
var prewarmScript []byte

// Warmup loads the diarization models through the given Python interpreter.
// The auth token travels only via the subprocess environment. Callers log
// failures and carry on; nothing here is fatal to the pipeline.
func Warmup(ctx context.Context, python, token string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "diarize.warmup")

	scriptPath := filepath.Join(os.TempDir(), fmt.Sprintf("prewarm_diarizer_%s.py", uuid.NewString()))
	if err := os.WriteFile(scriptPath, prewarmScript, 0o755); err != nil {
		return fmt.Errorf("diarize: write warm-up script: %w", err)
	}
	defer os.Remove(scriptPath)

	cmd := exec.CommandContext(ctx, python, scriptPath)
	cmd.Env = append(os.Environ(), "HUGGINGFACE_TOKEN="+token)
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		return fmt.Errorf("diarize: warm-up failed: %s", detail)
	}
	log.Info("diarizer warm-up complete")
	return nil
}
