package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	relay "github.com/copilothq/copilot-core/core"
)

// handleAudioSocket upgrades the connection and runs the session's receive
// loop: binary frames are audio for the transcription stream, text frames
// are metadata. The loop ends on client disconnect or an unrecoverable read
// error; either way the session is closed and deregistered.
func (s *Server) handleAudioSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	session := relay.NewSession(conn, s.newTranscriber(), s.llm,
		relay.WithPauseThreshold(s.config.Turn.PauseThreshold()),
		relay.WithHooks(s.sessionHooks()),
	)

	s.registry.Add(session)
	s.metrics.SessionsTotal.Inc()
	s.metrics.ActiveSessions.Inc()
	defer func() {
		session.Close()
		s.registry.Remove(session.ID())
		s.metrics.ActiveSessions.Dec()
		s.logger.Info("Client disconnected",
			slog.String("session", session.ID()),
			slog.Int("active", s.registry.Len()),
		)
	}()

	s.logger.Info("Client connected",
		slog.String("session", session.ID()),
		slog.Int("active", s.registry.Len()),
	)

	if err := session.Start(r.Context()); err != nil {
		s.logger.Error("Failed to start session",
			slog.String("session", session.ID()),
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Websocket read failed",
					slog.String("session", session.ID()),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := session.ForwardAudio(data); err != nil {
				s.logger.Warn("Failed to forward audio",
					slog.String("session", session.ID()),
					slog.String("error", err.Error()),
				)
			}
		case websocket.TextMessage:
			session.HandleMetadata(data)
		}
	}
}

// checkOrigin admits the browser extension plus the configured development
// origins. Entries ending in "://" match any origin with that scheme.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range s.config.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
		if strings.HasSuffix(allowed, "://") && strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

func (s *Server) sessionHooks() relay.Hooks {
	return relay.Hooks{
		OnTranscript: func(final bool) {
			kind := "interim"
			if final {
				kind = "final"
			}
			s.metrics.TranscriptsReceived.WithLabelValues(kind).Inc()
		},
		OnTurnDetected: func(string) {
			s.metrics.TurnsDetected.Inc()
		},
		OnResponse: func(duration time.Duration, err error) {
			s.metrics.LLMRequests.Inc()
			if err != nil {
				s.metrics.LLMFailures.Inc()
			}
			s.metrics.LLMDuration.Observe(duration.Seconds())
		},
		OnAudioForwarded: func(bytes int) {
			s.metrics.AudioBytesForwarded.Add(float64(bytes))
		},
	}
}
