package merger

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/keweikao/sales-ai-automation-V2/internal/engine"
)

func sampleTranscript() *FinalTranscript {
	return &FinalTranscript{
		Segments: []engine.Segment{
			{Start: 0, End: 3.5, Text: "這是第一個片段", Confidence: -0.2},
			{Start: 3661.042, End: 3665.0, Text: "一小時後的片段", Confidence: -0.4},
		},
		FullText:          "這是第一個片段 一小時後的片段",
		TotalSegments:     2,
		TotalDuration:     3665.0,
		AverageConfidence: -0.3,
		ChunksProcessed:   2,
		ChunksFailed:      0,
		Metadata: ProcessingMetadata{
			AudioPath:     "/audio/meeting.m4a",
			AudioDuration: 3700,
			ModelSize:     "medium",
			Device:        "cpu",
			Language:      "zh",
			Workers:       6,
			ChunkCount:    2,
		},
	}
}

func TestRenderTXT(t *testing.T) {
	got, err := Serialize(sampleTranscript(), FormatTXT)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	if got != "這是第一個片段 一小時後的片段" {
		t.Fatalf("unexpected txt output: %q", got)
	}
}

func TestRenderSRT(t *testing.T) {
	got, err := Serialize(sampleTranscript(), FormatSRT)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	want := "1\n" +
		"00:00:00,000 --> 00:00:03,500\n" +
		"這是第一個片段\n" +
		"\n" +
		"2\n" +
		"01:01:01,042 --> 01:01:05,000\n" +
		"一小時後的片段\n" +
		"\n"
	if got != want {
		t.Fatalf("unexpected srt output:\n%q\nwant:\n%q", got, want)
	}
}

func TestRenderVTT(t *testing.T) {
	got, err := Serialize(sampleTranscript(), FormatVTT)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	if !strings.HasPrefix(got, "WEBVTT\n\n") {
		t.Fatalf("vtt output missing header: %q", got)
	}
	if !strings.Contains(got, "01:01:01.042 --> 01:01:05.000") {
		t.Fatalf("vtt output missing dot-separated cue: %q", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Fatalf("vtt output missing trailing newline")
	}
}

func TestRenderJSONRoundTrip(t *testing.T) {
	original := sampleTranscript()
	raw, err := Serialize(original, FormatJSON)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}

	var parsed FinalTranscript
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}
	if diff := cmp.Diff(original, &parsed); diff != "" {
		t.Fatalf("json round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderJSONKeys(t *testing.T) {
	raw, err := Serialize(sampleTranscript(), FormatJSON)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	for _, key := range []string{
		"segments", "fullText", "totalSegments", "totalDuration",
		"averageConfidence", "chunksProcessed", "chunksFailed", "processingMetadata",
	} {
		if _, ok := top[key]; !ok {
			t.Fatalf("json output missing key %q", key)
		}
	}
}

func TestSerializeDeterministic(t *testing.T) {
	first, err := Serialize(sampleTranscript(), FormatJSON)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	second, err := Serialize(sampleTranscript(), FormatJSON)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	if first != second {
		t.Fatalf("serialization is not byte-identical across runs")
	}
}

func TestSerializeUnknownFormat(t *testing.T) {
	if _, err := Serialize(sampleTranscript(), "pdf"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	values := []float64{0, 0.001, 0.999, 1.5, 59.999, 61.0, 3599.5, 3661.042, 86399.999}
	for _, v := range values {
		wantMillis := math.Round(v * 1000)

		srt := FormatTimestampSRT(v)
		back, err := ParseTimestampSRT(srt)
		if err != nil {
			t.Fatalf("ParseTimestampSRT(%q) returned error: %v", srt, err)
		}
		if math.Round(back*1000) != wantMillis {
			t.Fatalf("srt round-trip lost precision: %v -> %q -> %v", v, srt, back)
		}

		vtt := FormatTimestampVTT(v)
		back, err = ParseTimestampVTT(vtt)
		if err != nil {
			t.Fatalf("ParseTimestampVTT(%q) returned error: %v", vtt, err)
		}
		if math.Round(back*1000) != wantMillis {
			t.Fatalf("vtt round-trip lost precision: %v -> %q -> %v", v, vtt, back)
		}
	}
}

func TestParseTimestampMalformed(t *testing.T) {
	for _, value := range []string{"", "12:34", "aa:bb:cc,ddd", "00:61:00,000", "00:00:61,000", "00:00:00,12"} {
		if _, err := ParseTimestampSRT(value); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteFiles(sampleTranscript(), dir, "meeting", []string{FormatTXT, FormatSRT, FormatVTT, FormatJSON})
	if err != nil {
		t.Fatalf("WriteFiles returned error: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("expected 4 files, got %d", len(paths))
	}
	for _, path := range paths {
		if !strings.Contains(path, "meeting_transcription.") {
			t.Fatalf("unexpected output name: %q", path)
		}
	}
}
