package merger

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Format names accepted by Serialize and WriteFiles.
const (
	FormatTXT  = "txt"
	FormatSRT  = "srt"
	FormatVTT  = "vtt"
	FormatJSON = "json"
)

var formats = map[string]func(*FinalTranscript) (string, error){
	FormatTXT:  renderTXT,
	FormatSRT:  renderSRT,
	FormatVTT:  renderVTT,
	FormatJSON: renderJSON,
}

// FormatNames lists the supported output formats, sorted.
func FormatNames() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidFormat reports whether name is a supported output format.
func ValidFormat(name string) bool {
	_, ok := formats[name]
	return ok
}

// Serialize renders the transcript in the named format. Pure function of
// its input: identical transcripts yield identical bytes.
func Serialize(final *FinalTranscript, format string) (string, error) {
	render, ok := formats[format]
	if !ok {
		return "", fmt.Errorf("merger: unsupported format %q (expected one of %s)", format, strings.Join(FormatNames(), ", "))
	}
	return render(final)
}

// WriteFiles serializes the transcript in every requested format under dir,
// named `<stem>_transcription.<format>`. Returns the written paths.
func WriteFiles(final *FinalTranscript, dir, stem string, requested []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("merger: create output dir: %w", err)
	}
	paths := make([]string, 0, len(requested))
	for _, format := range requested {
		rendered, err := Serialize(final, format)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_transcription.%s", stem, format))
		if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
			return paths, fmt.Errorf("merger: write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func renderTXT(final *FinalTranscript) (string, error) {
	return final.FullText, nil
}

func renderSRT(final *FinalTranscript) (string, error) {
	var b strings.Builder
	for i, seg := range final.Segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", FormatTimestampSRT(seg.Start), FormatTimestampSRT(seg.End))
		fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(seg.Text))
	}
	return b.String(), nil
}

func renderVTT(final *FinalTranscript) (string, error) {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range final.Segments {
		fmt.Fprintf(&b, "%s --> %s\n", FormatTimestampVTT(seg.Start), FormatTimestampVTT(seg.End))
		fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(seg.Text))
	}
	return b.String(), nil
}

func renderJSON(final *FinalTranscript) (string, error) {
	raw, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		return "", fmt.Errorf("merger: marshal transcript: %w", err)
	}
	return string(raw) + "\n", nil
}

// FormatTimestampSRT renders seconds as HH:MM:SS,mmm.
func FormatTimestampSRT(seconds float64) string {
	return formatTimestamp(seconds, ",")
}

// FormatTimestampVTT renders seconds as HH:MM:SS.mmm.
func FormatTimestampVTT(seconds float64) string {
	return formatTimestamp(seconds, ".")
}

func formatTimestamp(seconds float64, sep string) string {
	millis := int64(math.Round(seconds * 1000))
	if millis < 0 {
		millis = 0
	}
	h := millis / 3_600_000
	m := millis % 3_600_000 / 60_000
	s := millis % 60_000 / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms)
}

// ParseTimestampSRT parses HH:MM:SS,mmm back to seconds.
func ParseTimestampSRT(value string) (float64, error) {
	return parseTimestamp(value, ",")
}

// ParseTimestampVTT parses HH:MM:SS.mmm back to seconds.
func ParseTimestampVTT(value string) (float64, error) {
	return parseTimestamp(value, ".")
}

func parseTimestamp(value, sep string) (float64, error) {
	clock, msPart, ok := strings.Cut(value, sep)
	if !ok {
		return 0, fmt.Errorf("merger: malformed timestamp %q", value)
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("merger: malformed timestamp %q", value)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("merger: malformed timestamp %q", value)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m > 59 {
		return 0, fmt.Errorf("merger: malformed timestamp %q", value)
	}
	s, err := strconv.Atoi(parts[2])
	if err != nil || s > 59 {
		return 0, fmt.Errorf("merger: malformed timestamp %q", value)
	}
	ms, err := strconv.Atoi(msPart)
	if err != nil || len(msPart) != 3 {
		return 0, fmt.Errorf("merger: malformed timestamp %q", value)
	}
	total := int64(h)*3_600_000 + int64(m)*60_000 + int64(s)*1000 + int64(ms)
	return float64(total) / 1000, nil
}
