package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/copilothq/copilot-core/core/llms"
	"github.com/copilothq/copilot-core/core/speechtotext"
	"github.com/copilothq/copilot-core/internal/protocol"
	"github.com/google/uuid"
)

// State tracks a session through its lifecycle. Transitions only move
// forward: connecting -> active -> closing -> closed, with a direct jump to
// closed when the transcription stream cannot be established.
type State string

const (
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// SpeechToText is the transcription collaborator contract. Implementations
// emit fragments asynchronously through the registered callbacks.
type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
	Close() error
}

// LLM is the response-generation collaborator contract.
type LLM interface {
	Respond(ctx context.Context, question string, opts ...llms.PromptOption) (string, error)
}

// Hooks are optional observation points, used by the server for metrics.
// All fields may be nil.
type Hooks struct {
	OnTranscript     func(final bool)
	OnTurnDetected   func(question string)
	OnResponse       func(duration time.Duration, err error)
	OnAudioForwarded func(bytes int)
}

// Session relays one client connection: inbound audio frames go to the
// speech-to-text collaborator, transcript fragments come back to the client,
// and completed utterances are dispatched to the LLM for a response
// suggestion. A session owns exactly one transcript buffer and one
// transcription stream and is discarded when the connection closes.
type Session struct {
	id       string
	stt      SpeechToText
	llm      LLM
	detector BoundaryDetector
	buffer   *transcriptBuffer
	sender   *messageSender
	hooks    Hooks

	flushInterval time.Duration

	// mu serializes fragment handling, idle flushes and state transitions.
	// Fragments arrive on the transcription read goroutine while the idle
	// flusher runs on its own ticker; both touch the buffer.
	mu    sync.Mutex
	state State

	cancel    context.CancelFunc
	closeOnce sync.Once
}

type SessionOption func(*Session)

// WithPauseThreshold overrides the silence gap that completes a turn.
func WithPauseThreshold(threshold time.Duration) SessionOption {
	return func(s *Session) {
		s.detector = NewBoundaryDetector(threshold)
	}
}

// WithFlushInterval overrides how often the idle flusher checks for a
// stalled utterance. Intended for tests.
func WithFlushInterval(interval time.Duration) SessionOption {
	return func(s *Session) {
		if interval > 0 {
			s.flushInterval = interval
		}
	}
}

func WithHooks(hooks Hooks) SessionOption {
	return func(s *Session) {
		s.hooks = hooks
	}
}

func NewSession(conn ClientConn, stt SpeechToText, llm LLM, opts ...SessionOption) *Session {
	s := &Session{
		id:            uuid.NewString(),
		stt:           stt,
		llm:           llm,
		detector:      NewBoundaryDetector(DefaultPauseThreshold),
		buffer:        newTranscriptBuffer(),
		sender:        newMessageSender(conn),
		flushInterval: 500 * time.Millisecond,
		state:         StateConnecting,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Start establishes the transcription stream and activates the session.
// On failure the client is notified and the session goes straight to closed.
func (s *Session) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Fragments can arrive while Transcribe is still returning; activate
	// first so the state check does not drop them.
	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	if err := s.stt.Transcribe(ctx,
		speechtotext.WithInterimTranscriptionCallback(func(transcript string) {
			s.handleFragment(transcript, false)
		}),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			s.handleFragment(transcript, true)
		}),
		speechtotext.WithErrorCallback(s.handleStreamError),
		speechtotext.WithCloseCallback(s.handleStreamClose),
	); err != nil {
		s.sendError(fmt.Sprintf("failed to start transcription: %v", err))
		s.Close()
		return fmt.Errorf("failed to start transcription: %w", err)
	}

	go s.flushIdleTurns(ctx)

	return nil
}

// ForwardAudio passes one inbound binary frame, unmodified, to the
// transcription stream. Frames arriving outside the active state are dropped.
func (s *Session) ForwardAudio(chunk []byte) error {
	s.mu.Lock()
	active := s.state == StateActive
	s.mu.Unlock()
	if !active {
		return nil
	}

	if err := s.stt.SendAudio(chunk); err != nil {
		return fmt.Errorf("failed to forward audio: %w", err)
	}
	if s.hooks.OnAudioForwarded != nil {
		s.hooks.OnAudioForwarded(len(chunk))
	}
	return nil
}

// HandleMetadata accepts an inbound text frame. Metadata messages are
// reserved for future use; malformed ones are logged and dropped.
func (s *Session) HandleMetadata(raw []byte) {
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		logger.Warn("Ignoring malformed metadata message", "session", s.id, "error", err)
		return
	}
	logger.Debug("Received metadata message", "session", s.id)
}

// handleFragment runs for every fragment the transcription stream emits.
// Every non-empty fragment is forwarded to the client; only final fragments
// are buffered and evaluated for a turn boundary.
func (s *Session) handleFragment(transcript string, final bool) {
	if strings.TrimSpace(transcript) == "" {
		return
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}

	if err := s.sender.Send(protocol.NewTranscript(transcript, final)); err != nil {
		logger.Warn("Failed to forward transcript", "session", s.id, "error", err)
	}
	if s.hooks.OnTranscript != nil {
		s.hooks.OnTranscript(final)
	}

	if !final {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	boundary := s.detector.Evaluate(transcript, now, s.buffer.LastEvent())
	s.buffer.appendAt(transcript, now)

	var question string
	if boundary {
		question = s.buffer.drainAt(now)
	}
	s.mu.Unlock()

	if question != "" {
		s.dispatch(question)
	}
}

// flushIdleTurns completes an utterance whose speaker went quiet: once the
// buffer has sat past the pause threshold without a new fragment, its
// content is dispatched as a turn of its own.
func (s *Session) flushIdleTurns(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.state != StateActive {
				s.mu.Unlock()
				continue
			}

			now := time.Now()
			var question string
			if s.buffer.Len() > 0 && now.Sub(s.buffer.LastEvent()) > s.detector.PauseThreshold() {
				question = s.buffer.drainAt(now)
			}
			s.mu.Unlock()

			if question != "" {
				s.dispatch(question)
			}
		}
	}
}

// dispatch hands a completed utterance to the LLM without blocking the
// receive loop. An in-flight call is allowed to outlive the session; a
// delivery attempt on a closed connection is logged and swallowed.
func (s *Session) dispatch(question string) {
	if s.hooks.OnTurnDetected != nil {
		s.hooks.OnTurnDetected(question)
	}

	go func() {
		ctx, span := tracer.Start(context.Background(), "dispatch response")
		defer span.End()

		started := time.Now()
		answer, err := s.llm.Respond(ctx, question)
		if s.hooks.OnResponse != nil {
			s.hooks.OnResponse(time.Since(started), err)
		}
		if err != nil {
			span.RecordError(err)
			logger.ErrorContext(ctx, "Failed to generate response", "session", s.id, "error", err)
			s.sendError(fmt.Sprintf("LLM error: %v", err))
			return
		}

		if err := s.sender.Send(protocol.NewResponse(answer, question)); err != nil {
			logger.WarnContext(ctx, "Failed to deliver response", "session", s.id, "error", err)
		}
	}()
}

func (s *Session) handleStreamError(err error) {
	logger.Error("Transcription stream failed", "session", s.id, "error", err)
	s.sendError(fmt.Sprintf("transcription error: %v", err))
	s.Close()
}

// handleStreamClose runs when the transcription stream ends without an
// error. A stream the session did not close itself is still a dead session;
// the client is notified and the session shuts down.
func (s *Session) handleStreamClose() {
	s.mu.Lock()
	active := s.state == StateActive
	s.mu.Unlock()
	if !active {
		return
	}

	logger.Warn("Transcription stream ended", "session", s.id)
	s.sendError("transcription stream closed")
	s.Close()
}

func (s *Session) sendError(message string) {
	if err := s.sender.Send(protocol.NewError(message)); err != nil {
		logger.Warn("Failed to deliver error message", "session", s.id, "error", err)
	}
}

// Close tears the session down: the transcription stream is closed, the
// idle flusher stops and further sends are refused. Pending response
// dispatches are left to complete or fail on their own. Safe to call more
// than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosing
		s.mu.Unlock()

		if s.cancel != nil {
			s.cancel()
		}
		if err := s.stt.Close(); err != nil {
			logger.Warn("Failed to close transcription stream", "session", s.id, "error", err)
		}
		s.sender.Close()

		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
	})
}
