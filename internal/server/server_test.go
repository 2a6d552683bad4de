package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/keweikao/sales-ai-automation-V2/internal/audio"
	"github.com/keweikao/sales-ai-automation-V2/internal/config"
	"github.com/keweikao/sales-ai-automation-V2/internal/engine"
	"github.com/keweikao/sales-ai-automation-V2/internal/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProber struct {
	duration float64
	err      error
}

func (f *fakeProber) Probe(ctx context.Context, path string) (audio.Ref, error) {
	if f.err != nil {
		return audio.Ref{}, f.err
	}
	return audio.Ref{Path: path, Duration: f.duration, SampleRate: 16000, Channels: 1}, nil
}

type fakePCM struct{ seconds float64 }

func (f *fakePCM) ReadMono16k(ctx context.Context, path string) ([]float32, error) {
	return make([]float32, int(f.seconds*audio.SampleRate)), nil
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(ctx context.Context, src string, start, duration float64, dst string) error {
	return os.WriteFile(dst, []byte("pcm"), 0o644)
}

type silentEngine struct{}

func (silentEngine) TranscribeFile(ctx context.Context, path string, opts engine.Options) (engine.Result, error) {
	return engine.Result{Language: "zh"}, nil
}
func (silentEngine) Close() error { return nil }

func newTestServer(t *testing.T, prober *fakeProber) *Server {
	t.Helper()
	cfg := config.Config{MaxWorkers: 1, UseStubEngine: true}
	pipe, err := pipeline.NewWithDeps(cfg, pipeline.Deps{
		Prober:    prober,
		PCM:       &fakePCM{seconds: 10},
		Extractor: fakeExtractor{},
		Factory:   func() (engine.Engine, error) { return silentEngine{}, nil },
	}, quietLogger())
	if err != nil {
		t.Fatalf("NewWithDeps returned error: %v", err)
	}
	return New(pipe, quietLogger())
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &fakeProber{duration: 10})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health payload: %v", body)
	}
}

func TestTranscribeEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeProber{duration: 10})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe",
		strings.NewReader(`{"audio_path": "/audio/clip.m4a"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		RequestID  string          `json:"request_id"`
		Transcript json.RawMessage `json:"transcript"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.RequestID == "" || len(body.Transcript) == 0 {
		t.Fatalf("incomplete response: %s", rec.Body.String())
	}
}

func TestTranscribeEndpointMissingPath(t *testing.T) {
	srv := newTestServer(t, &fakeProber{duration: 10})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTranscribeEndpointInputError(t *testing.T) {
	srv := newTestServer(t, &fakeProber{err: fmt.Errorf("moov atom not found")})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe",
		strings.NewReader(`{"audio_path": "/audio/corrupt.m4a"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for input error, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeProber{duration: 10})

	// Run one request so the counters move.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe",
		strings.NewReader(`{"audio_path": "/audio/clip.m4a"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed request failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var snapshot struct {
		TotalRuns uint64 `json:"total_runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if snapshot.TotalRuns != 1 {
		t.Fatalf("expected one recorded run, got %d", snapshot.TotalRuns)
	}
}
