package engine

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/keweikao/sales-ai-automation-V2/internal/audio"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeToneWAV writes a 16-bit PCM mono WAV with a constant non-zero sample.
func writeToneWAV(t *testing.T, path string, seconds float64) {
	t.Helper()
	sampleCount := int(seconds * audio.SampleRate)
	dataSize := sampleCount * 2

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(audio.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(audio.SampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i := 0; i < sampleCount; i++ {
		binary.LittleEndian.PutUint16(buf[44+2*i:], uint16(int16(8000)))
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write tone wav: %v", err)
	}
}

func TestStubEngineSilence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.wav")
	if err := audio.WriteSilenceWAV(path, 2.0, audio.SampleRate); err != nil {
		t.Fatalf("WriteSilenceWAV returned error: %v", err)
	}

	eng := NewStubEngine(quietLogger(), "tiny")
	result, err := eng.TranscribeFile(context.Background(), path, Options{Language: "zh"})
	if err != nil {
		t.Fatalf("TranscribeFile returned error: %v", err)
	}
	if len(result.Segments) != 0 {
		t.Fatalf("expected no segments for silence, got %d", len(result.Segments))
	}
	if result.Duration != 2.0 {
		t.Fatalf("expected duration 2.0, got %v", result.Duration)
	}
	if result.Language != "zh" {
		t.Fatalf("expected language fallback zh, got %q", result.Language)
	}
}

func TestStubEngineSpeech(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeToneWAV(t, path, 12)

	eng := NewStubEngine(quietLogger(), "tiny")
	result, err := eng.TranscribeFile(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("TranscribeFile returned error: %v", err)
	}
	// One segment per five seconds, last one clipped to the duration.
	if len(result.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(result.Segments))
	}
	if result.Segments[2].End != 12 {
		t.Fatalf("last segment should end at the duration, got %v", result.Segments[2].End)
	}
	for i := 1; i < len(result.Segments); i++ {
		if result.Segments[i].Start != result.Segments[i-1].End {
			t.Fatalf("segments must be contiguous: %+v", result.Segments)
		}
	}
}

func TestStubEngineDeterministic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeToneWAV(t, path, 7)

	eng := NewStubEngine(quietLogger(), "base")
	first, err := eng.TranscribeFile(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("TranscribeFile returned error: %v", err)
	}
	second, err := eng.TranscribeFile(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("TranscribeFile returned error: %v", err)
	}
	if len(first.Segments) != len(second.Segments) {
		t.Fatalf("stub not deterministic: %d vs %d segments", len(first.Segments), len(second.Segments))
	}
	for i := range first.Segments {
		if first.Segments[i] != second.Segments[i] {
			t.Fatalf("stub not deterministic at segment %d", i)
		}
	}
}

func TestStubEngineRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.wav")
	if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
		t.Fatalf("write bogus file: %v", err)
	}
	eng := NewStubEngine(quietLogger(), "tiny")
	if _, err := eng.TranscribeFile(context.Background(), path, Options{}); err == nil {
		t.Fatalf("expected error for non-WAV input")
	}
}
