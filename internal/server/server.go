package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/keweikao/sales-ai-automation-V2/internal/pipeline"
	"github.com/keweikao/sales-ai-automation-V2/internal/pipelineinfo"
)

// Server exposes the pipeline over HTTP for long-lived container
// deployments. The pipeline is single-request-at-a-time internally, so the
// server serialises runs with a mutex rather than queueing.
type Server struct {
	pipe *pipeline.Pipeline
	log  *slog.Logger
	mu   sync.Mutex
}

// New builds a Server around a ready pipeline.
func New(pipe *pipeline.Pipeline, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		pipe: pipe,
		log:  logger.With("component", "server.Server"),
	}
}

// Router wires the HTTP surface.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	r.GET("/api/metrics", s.metrics)
	r.POST("/api/transcribe", s.transcribe)
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"name":    pipelineinfo.Info.Name,
		"version": pipelineinfo.Info.Version,
	})
}

func (s *Server) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipe.Recorder().Snapshot())
}

type transcribeRequest struct {
	AudioPath string `json:"audio_path" binding:"required"`
}

func (s *Server) transcribe(c *gin.Context) {
	var req transcribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio_path is required"})
		return
	}

	requestID := uuid.NewString()
	log := s.log.With("request_id", requestID, "audio_path", req.AudioPath)
	log.Info("transcription request received")

	s.mu.Lock()
	final, err := s.pipe.Process(c.Request.Context(), req.AudioPath)
	s.mu.Unlock()

	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pipeline.ErrConfig):
			status = http.StatusBadRequest
		case errors.Is(err, pipeline.ErrInput):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, pipeline.ErrModel):
			status = http.StatusServiceUnavailable
		}
		log.Error("transcription request failed", "error", err)
		c.JSON(status, gin.H{"error": err.Error(), "request_id": requestID})
		return
	}

	log.Info("transcription request finished",
		"segments", final.TotalSegments,
		"chunks_failed", final.ChunksFailed,
	)
	c.JSON(http.StatusOK, gin.H{
		"request_id": requestID,
		"transcript": final,
	})
}
