package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	relay "github.com/copilothq/copilot-core/core"
	"github.com/copilothq/copilot-core/internal/config"
	"github.com/copilothq/copilot-core/internal/metrics"
)

// Server exposes the audio websocket, the status endpoint and Prometheus
// metrics over one HTTP listener.
type Server struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	metrics  *metrics.Metrics
	registry *sessionRegistry

	llm relay.LLM
	// newTranscriber builds a fresh speech-to-text stream per session.
	newTranscriber func() relay.SpeechToText
}

func New(cfg *config.Config, logger *slog.Logger, llm relay.LLM,
	newTranscriber func() relay.SpeechToText, m *metrics.Metrics) *Server {

	s := &Server{
		logger:         logger,
		config:         cfg,
		metrics:        m,
		registry:       newSessionRegistry(),
		llm:            llm,
		newTranscriber: newTranscriber,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws/audio", s.handleAudioSocket)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           otelhttp.NewHandler(mux, "copilotd"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Start starts the HTTP server without blocking.
func (s *Server) Start() {
	s.logger.Info("Starting server",
		slog.String("address", s.server.Addr),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()
}

// Stop closes all active sessions and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping server...")

	s.registry.CloseAll()
	return s.server.Shutdown(ctx)
}

// ActiveSessions returns the number of currently connected clients.
func (s *Server) ActiveSessions() int {
	return s.registry.Len()
}

// handleStatus implements the read-only status endpoint: whether both
// collaborators carry credentials, nothing more.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":              "running",
		"service":             "copilot-core backend",
		"deepgram_configured": s.config.Deepgram.APIKey != "",
		"groq_configured":     s.config.LLM.APIKey != "",
	})
}
