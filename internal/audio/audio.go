package audio

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// SampleRate is the rate every downstream consumer expects. Whisper models
// are trained on 16 kHz mono input.
const SampleRate = 16000

// Ref is an immutable handle to an input audio file, created once by the
// orchestrator and read by all stages.
type Ref struct {
	Path       string  `json:"path"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	SizeBytes  int64   `json:"size_bytes"`
}

// Prober resolves an input path to a Ref.
type Prober interface {
	Probe(ctx context.Context, path string) (Ref, error)
}

// PCMReader decodes an input file to mono 16 kHz float32 samples.
type PCMReader interface {
	ReadMono16k(ctx context.Context, path string) ([]float32, error)
}

// Extractor writes the `[start, start+duration)` slice of the source file as
// a self-contained 16 kHz mono WAV at dst.
type Extractor interface {
	Extract(ctx context.Context, src string, start, duration float64, dst string) error
}

// FFmpeg implements Prober, PCMReader, and Extractor by shelling out to the
// ffmpeg/ffprobe binaries on PATH.
type FFmpeg struct {
	log *slog.Logger
}

// NewFFmpeg returns an FFmpeg helper bound to the given logger.
func NewFFmpeg(logger *slog.Logger) *FFmpeg {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{log: logger.With("component", "audio.ffmpeg")}
}

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe runs ffprobe against path and returns the detected metadata.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Ref, error) {
	if _, err := os.Stat(path); err != nil {
		return Ref{}, fmt.Errorf("stat input: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "stream=codec_type,sample_rate,channels",
		"-show_entries", "format=duration,size",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return Ref{}, fmt.Errorf("ffprobe %s: %s", path, exitDetail(err))
	}

	ref, err := parseProbeOutput(out)
	if err != nil {
		return Ref{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	ref.Path = path

	f.log.Debug("probed input",
		"path", path,
		"duration", ref.Duration,
		"sample_rate", ref.SampleRate,
		"channels", ref.Channels,
	)
	return ref, nil
}

func parseProbeOutput(raw []byte) (Ref, error) {
	var parsed probeOutput
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Ref{}, fmt.Errorf("decode probe output: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64)
	if err != nil || duration <= 0 {
		return Ref{}, fmt.Errorf("input has no decodable duration (%q)", parsed.Format.Duration)
	}

	ref := Ref{Duration: duration}
	if parsed.Format.Size != "" {
		if size, err := strconv.ParseInt(parsed.Format.Size, 10, 64); err == nil {
			ref.SizeBytes = size
		}
	}
	for _, stream := range parsed.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		if rate, err := strconv.Atoi(stream.SampleRate); err == nil {
			ref.SampleRate = rate
		}
		ref.Channels = stream.Channels
		break
	}
	if ref.SampleRate == 0 {
		return Ref{}, fmt.Errorf("input has no audio stream")
	}
	return ref, nil
}

// ReadMono16k decodes the whole file to mono 16 kHz samples in [-1, 1].
// There is no silent fallback: a decode or resample failure is an error.
func (f *FFmpeg) ReadMono16k(ctx context.Context, path string) ([]float32, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-i", path,
		"-ac", "1",
		"-ar", strconv.Itoa(SampleRate),
		"-f", "s16le",
		"-c:a", "pcm_s16le",
		"pipe:1",
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %s", path, exitDetail(err))
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("ffmpeg decode %s: empty stream", path)
	}
	return bytesToSamples(out), nil
}

// Extract writes the requested slice of src as a 16 kHz mono WAV at dst.
func (f *FFmpeg) Extract(ctx context.Context, src string, start, duration float64, dst string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-i", src,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-ac", "1",
		"-ar", strconv.Itoa(SampleRate),
		"-c:a", "pcm_s16le",
		"-y",
		dst,
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg extract [%s +%s] from %s: %s",
			formatSeconds(start), formatSeconds(duration), src, exitDetail(err))
	}
	f.log.Debug("extracted chunk", "src", src, "dst", dst, "start", start, "duration", duration)
	return nil
}

func bytesToSamples(raw []byte) []float32 {
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func exitDetail(err error) string {
	if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
		return strings.TrimSpace(string(ee.Stderr))
	}
	return err.Error()
}
