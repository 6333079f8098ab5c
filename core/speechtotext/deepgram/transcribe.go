package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/copilothq/copilot-core/core/speechtotext"
	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
)

func (s *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	options := &speechtotext.TranscriptionOptions{}
	for _, opt := range opts {
		opt(options)
	}

	conn, err := connectWebsocket(s.config, connectionOptions{
		interimResults: options.InterimTranscriptionCallback != nil,
	})
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.lastMsgTs = time.Now()
	s.connMu.Unlock()

	go s.readAndProcessMessages(ctx, conn, *options)
	go s.keepAlive(ctx)

	return nil
}

type connectionOptions struct {
	interimResults bool
}

func connectWebsocket(config Config, options connectionOptions) (*websocket.Conn, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("deepgram api key not set")
	}

	listenUrl, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram endpoint: %w", err)
	}
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", config.Encoding)
	queryParams.Set("sample_rate", strconv.Itoa(config.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", config.Model)
	queryParams.Set("language", config.Language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("punctuate", "true")
	if options.interimResults || config.UtteranceEndMS > 0 {
		// utterance_end_ms is only honored alongside interim results
		queryParams.Set("interim_results", "true")
	}
	if config.UtteranceEndMS > 0 {
		queryParams.Set("utterance_end_ms", strconv.Itoa(config.UtteranceEndMS))
	}

	listenUrl.RawQuery = queryParams.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(listenUrl.String(),
		http.Header{"Authorization": {"Token " + config.APIKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, err
}

func (s *TranscriptionClient) SendAudio(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("transcription stream not started")
	}

	s.lastMsgTs = time.Now()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (s *TranscriptionClient) sendKeepAlive() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return
	}

	if err := s.conn.WriteJSON(
		struct {
			Type string `json:"type"`
		}{
			Type: "KeepAlive",
		}); err != nil {
		log.Println("Failed to write to deepgram client", "error", err)
	}
}

// closeDrainTimeout bounds how long the read loop waits for Deepgram's
// flushed transcripts and close frame after CloseStream was sent.
const closeDrainTimeout = 3 * time.Second

// Close flushes Deepgram's buffer and lets the read loop drain whatever the
// server sends back before the connection goes away. Safe to call when the
// stream never started.
func (s *TranscriptionClient) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return nil
	}

	if err := s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to flush deepgram buffer through websocket: %w", err)
	}

	// Deepgram responds with any buffered final transcripts and then closes
	// the connection; the read loop delivers them and tears the conn down.
	if err := s.conn.SetReadDeadline(time.Now().Add(closeDrainTimeout)); err != nil {
		return fmt.Errorf("failed to bound deepgram websocket drain: %w", err)
	}
	return nil
}

func (s *TranscriptionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, options speechtotext.TranscriptionOptions) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && ctx.Err() == nil {
				if options.ErrorCallback != nil {
					options.ErrorCallback(fmt.Errorf("deepgram stream failed: %w", err))
				} else {
					log.Println("Failed to read deepgram websocket message", "error", err)
				}
			}

			s.connMu.Lock()
			s.conn = nil
			s.connMu.Unlock()
			conn.Close()

			if options.CloseCallback != nil {
				options.CloseCallback()
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			s.processMessage(msg, options)
		}
	}
}

func (s *TranscriptionClient) processMessage(msg []byte, options speechtotext.TranscriptionOptions) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		log.Println("Failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			log.Println("Failed to unmarshal deepgram message", err)
			return
		}
		if len(msgResp.Channel.Alternatives) == 0 {
			return
		}

		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		if len(transcript) == 0 {
			return
		}

		if msgResp.IsFinal {
			if options.TranscriptionCallback != nil {
				options.TranscriptionCallback(transcript)
			}
		} else if options.InterimTranscriptionCallback != nil {
			options.InterimTranscriptionCallback(transcript)
		}

	case api.TypeResponse(api.TypeErrorResponse):
		var errResp struct {
			ErrCode     string `json:"err_code"`
			ErrMsg      string `json:"err_msg"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(msg, &errResp); err != nil {
			log.Println("Failed to unmarshal deepgram error", err)
			return
		}
		if options.ErrorCallback != nil {
			options.ErrorCallback(fmt.Errorf("deepgram error %s: %s", errResp.ErrCode, errResp.ErrMsg))
		} else {
			log.Println("Deepgram error", errResp.ErrCode, errResp.ErrMsg, errResp.Description)
		}
	}
}

// keepAlive keeps the Deepgram websocket open across silent stretches. The
// browser stops sending frames whenever the tab is muted, and Deepgram
// drops idle connections after ~10s without either audio or a KeepAlive.
func (s *TranscriptionClient) keepAlive(ctx context.Context) {
	const checkInterval = 3 * time.Second
	const idleThreshold = 5 * time.Second

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			stopped := s.conn == nil
			idle := time.Since(s.lastMsgTs) >= idleThreshold
			s.connMu.Unlock()

			if stopped {
				return
			}
			if idle {
				s.sendKeepAlive()
			}
		}
	}
}
