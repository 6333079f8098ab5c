package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/copilothq/copilot-core/core/llms"
	"github.com/copilothq/copilot-core/core/speechtotext"
	"github.com/copilothq/copilot-core/internal/protocol"
)

type speechToTextStub struct {
	mu            sync.Mutex
	options       speechtotext.TranscriptionOptions
	audio         [][]byte
	transcribeErr error
	closed        bool

	// emitOnTranscribe emits a final fragment before Transcribe returns,
	// like a stream that starts delivering during connection setup.
	emitOnTranscribe string
}

func (s *speechToTextStub) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	if s.transcribeErr != nil {
		return s.transcribeErr
	}

	options := speechtotext.TranscriptionOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	s.mu.Lock()
	s.options = options
	s.mu.Unlock()

	if s.emitOnTranscribe != "" {
		options.TranscriptionCallback(s.emitOnTranscribe)
	}
	return nil
}

func (s *speechToTextStub) SendAudio(audio []byte) error {
	s.mu.Lock()
	s.audio = append(s.audio, audio)
	s.mu.Unlock()
	return nil
}

func (s *speechToTextStub) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *speechToTextStub) emitInterim(transcript string) {
	s.mu.Lock()
	callback := s.options.InterimTranscriptionCallback
	s.mu.Unlock()
	callback(transcript)
}

func (s *speechToTextStub) emitFinal(transcript string) {
	s.mu.Lock()
	callback := s.options.TranscriptionCallback
	s.mu.Unlock()
	callback(transcript)
}

func (s *speechToTextStub) failStream(err error) {
	s.mu.Lock()
	callback := s.options.ErrorCallback
	s.mu.Unlock()
	callback(err)
}

func (s *speechToTextStub) endStream() {
	s.mu.Lock()
	callback := s.options.CloseCallback
	s.mu.Unlock()
	callback()
}

func (s *speechToTextStub) audioFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio)
}

func (s *speechToTextStub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type llmStub struct {
	mu        sync.Mutex
	questions []string
	response  string
	err       error

	// release, when set, blocks Respond until the channel is closed.
	release chan struct{}
}

func (l *llmStub) Respond(_ context.Context, question string, _ ...llms.PromptOption) (string, error) {
	l.mu.Lock()
	l.questions = append(l.questions, question)
	err := l.err
	response := l.response
	release := l.release
	l.mu.Unlock()

	if release != nil {
		<-release
	}
	if err != nil {
		return "", err
	}
	return response, nil
}

func (l *llmStub) askedQuestions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.questions...)
}

func (l *llmStub) setFailure(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

type clientConnStub struct {
	mu       sync.Mutex
	messages []any
}

func (c *clientConnStub) WriteJSON(v any) error {
	c.mu.Lock()
	c.messages = append(c.messages, v)
	c.mu.Unlock()
	return nil
}

func (c *clientConnStub) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.messages...)
}

func (c *clientConnStub) countByType() (transcripts, responses, errors int) {
	for _, msg := range c.snapshot() {
		switch msg.(type) {
		case protocol.Transcript:
			transcripts++
		case protocol.Response:
			responses++
		case protocol.Error:
			errors++
		}
	}
	return transcripts, responses, errors
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func startedSession(t *testing.T, conn *clientConnStub, stt *speechToTextStub, llm *llmStub, opts ...SessionOption) *Session {
	t.Helper()

	session := NewSession(conn, stt, llm, opts...)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("expected session start to succeed, got %v", err)
	}
	t.Cleanup(session.Close)
	return session
}

func TestSessionForwardsInterimFragmentsWithoutBuffering(t *testing.T) {
	conn := &clientConnStub{}
	stt := &speechToTextStub{}
	llm := &llmStub{response: "ok"}
	session := startedSession(t, conn, stt, llm, WithFlushInterval(time.Hour))

	stt.emitInterim("Tell me ab")

	messages := conn.snapshot()
	if len(messages) != 1 {
		t.Fatalf("expected one message, got %d", len(messages))
	}
	transcript, ok := messages[0].(protocol.Transcript)
	if !ok {
		t.Fatalf("expected transcript message, got %T", messages[0])
	}
	if transcript.Text != "Tell me ab" || transcript.Final {
		t.Fatalf("expected interim transcript, got %+v", transcript)
	}

	if session.buffer.Len() != 0 {
		t.Fatalf("expected interim fragment not to be buffered")
	}
	if len(llm.askedQuestions()) != 0 {
		t.Fatalf("expected no dispatch for interim fragments")
	}
}

func TestSessionDispatchesOnPunctuationBoundary(t *testing.T) {
	conn := &clientConnStub{}
	stt := &speechToTextStub{}
	llm := &llmStub{response: "Mention the migration project."}
	session := startedSession(t, conn, stt, llm, WithFlushInterval(time.Hour))

	stt.emitFinal("How are")
	stt.emitFinal("you today?")

	waitFor(t, time.Second, func() bool {
		_, responses, _ := conn.countByType()
		return responses == 1
	})

	questions := llm.askedQuestions()
	if len(questions) != 1 || questions[0] != "How are you today?" {
		t.Fatalf("expected dispatched utterance \"How are you today?\", got %v", questions)
	}

	messages := conn.snapshot()
	if len(messages) != 3 {
		t.Fatalf("expected two transcripts and one response, got %d messages", len(messages))
	}
	for i, want := range []string{"How are", "you today?"} {
		transcript, ok := messages[i].(protocol.Transcript)
		if !ok || transcript.Text != want || !transcript.Final {
			t.Fatalf("expected final transcript %q at position %d, got %+v", want, i, messages[i])
		}
	}
	response, ok := messages[2].(protocol.Response)
	if !ok {
		t.Fatalf("expected response message last, got %T", messages[2])
	}
	if response.Question != "How are you today?" || response.Text != "Mention the migration project." {
		t.Fatalf("unexpected response payload: %+v", response)
	}

	if session.buffer.Len() != 0 {
		t.Fatalf("expected buffer cleared after dispatch")
	}
}

func TestSessionFlushesIdleUtterance(t *testing.T) {
	conn := &clientConnStub{}
	stt := &speechToTextStub{}
	llm := &llmStub{response: "ok"}
	startedSession(t, conn, stt, llm,
		WithPauseThreshold(50*time.Millisecond),
		WithFlushInterval(10*time.Millisecond),
	)

	stt.emitFinal("So anyway")

	waitFor(t, time.Second, func() bool {
		questions := llm.askedQuestions()
		return len(questions) == 1 && questions[0] == "So anyway"
	})
}

func TestSessionReportsLLMFailureAndKeepsRunning(t *testing.T) {
	conn := &clientConnStub{}
	stt := &speechToTextStub{}
	llm := &llmStub{response: "ok"}
	llm.setFailure(errors.New("model overloaded"))
	session := startedSession(t, conn, stt, llm, WithFlushInterval(time.Hour))

	stt.emitFinal("Any questions?")

	waitFor(t, time.Second, func() bool {
		_, _, errCount := conn.countByType()
		return errCount == 1
	})

	if _, responses, _ := conn.countByType(); responses != 0 {
		t.Fatalf("expected no response message for the failed utterance")
	}
	if got := session.State(); got != StateActive {
		t.Fatalf("expected session to stay active, got %s", got)
	}

	// the next utterance is unaffected
	llm.setFailure(nil)
	stt.emitFinal("Works now?")

	waitFor(t, time.Second, func() bool {
		_, responses, _ := conn.countByType()
		return responses == 1
	})
	if _, _, errCount := conn.countByType(); errCount != 1 {
		t.Fatalf("expected exactly one error message")
	}
}

func TestSessionStartFailureClosesSession(t *testing.T) {
	conn := &clientConnStub{}
	stt := &speechToTextStub{transcribeErr: errors.New("dial failed")}
	llm := &llmStub{}

	session := NewSession(conn, stt, llm)
	if err := session.Start(context.Background()); err == nil {
		t.Fatalf("expected start to fail")
	}

	if got := session.State(); got != StateClosed {
		t.Fatalf("expected session closed after failed start, got %s", got)
	}
	if _, _, errCount := conn.countByType(); errCount != 1 {
		t.Fatalf("expected error message sent to client")
	}
}

func TestSessionStreamErrorNotifiesAndCloses(t *testing.T) {
	conn := &clientConnStub{}
	stt := &speechToTextStub{}
	llm := &llmStub{}
	session := startedSession(t, conn, stt, llm, WithFlushInterval(time.Hour))

	stt.failStream(errors.New("connection reset"))

	waitFor(t, time.Second, func() bool {
		return session.State() == StateClosed
	})
	if _, _, errCount := conn.countByType(); errCount != 1 {
		t.Fatalf("expected error message sent to client")
	}
	if !stt.isClosed() {
		t.Fatalf("expected transcription stream closed")
	}
}

func TestSessionClosesWhenStreamEnds(t *testing.T) {
	conn := &clientConnStub{}
	stt := &speechToTextStub{}
	llm := &llmStub{}
	session := startedSession(t, conn, stt, llm, WithFlushInterval(time.Hour))

	stt.endStream()

	waitFor(t, time.Second, func() bool {
		return session.State() == StateClosed
	})
	if _, _, errCount := conn.countByType(); errCount != 1 {
		t.Fatalf("expected error message sent to client")
	}
	if !stt.isClosed() {
		t.Fatalf("expected transcription stream closed")
	}

	// a late close notification after shutdown stays silent
	before := len(conn.snapshot())
	stt.endStream()
	if got := len(conn.snapshot()); got != before {
		t.Fatalf("expected no messages after close, got %d new", got-before)
	}
}

func TestSessionToleratesResponseFinishingAfterClose(t *testing.T) {
	conn := &clientConnStub{}
	stt := &speechToTextStub{}
	llm := &llmStub{response: "too late", release: make(chan struct{})}
	session := startedSession(t, conn, stt, llm, WithFlushInterval(time.Hour))

	stt.emitFinal("Still there?")
	waitFor(t, time.Second, func() bool {
		return len(llm.askedQuestions()) == 1
	})

	session.Close()
	close(llm.release)

	time.Sleep(50 * time.Millisecond)
	if _, responses, _ := conn.countByType(); responses != 0 {
		t.Fatalf("expected no response delivered after close")
	}
}

func TestSessionAcceptsFragmentsEmittedDuringStart(t *testing.T) {
	conn := &clientConnStub{}
	stt := &speechToTextStub{emitOnTranscribe: "Hello there."}
	llm := &llmStub{response: "ok"}
	startedSession(t, conn, stt, llm, WithFlushInterval(time.Hour))

	waitFor(t, time.Second, func() bool {
		transcripts, responses, _ := conn.countByType()
		return transcripts == 1 && responses == 1
	})
}

func TestSessionIgnoresEmptyFragments(t *testing.T) {
	conn := &clientConnStub{}
	stt := &speechToTextStub{}
	llm := &llmStub{}
	session := startedSession(t, conn, stt, llm, WithFlushInterval(time.Hour))

	stt.emitFinal("   ")
	stt.emitInterim("\t")

	if messages := conn.snapshot(); len(messages) != 0 {
		t.Fatalf("expected no messages for whitespace fragments, got %d", len(messages))
	}
	if session.buffer.Len() != 0 {
		t.Fatalf("expected whitespace fragments not to be buffered")
	}
}

func TestSessionForwardsAudioOnlyWhileActive(t *testing.T) {
	conn := &clientConnStub{}
	stt := &speechToTextStub{}
	llm := &llmStub{}

	session := NewSession(conn, stt, llm, WithFlushInterval(time.Hour))
	if err := session.ForwardAudio([]byte{1, 2}); err != nil {
		t.Fatalf("expected pre-start audio to be dropped silently, got %v", err)
	}
	if stt.audioFrames() != 0 {
		t.Fatalf("expected no audio forwarded before start")
	}

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	if err := session.ForwardAudio([]byte{3, 4}); err != nil {
		t.Fatalf("expected audio forwarding to succeed, got %v", err)
	}
	if stt.audioFrames() != 1 {
		t.Fatalf("expected one audio frame forwarded, got %d", stt.audioFrames())
	}

	session.Close()
	if err := session.ForwardAudio([]byte{5, 6}); err != nil {
		t.Fatalf("expected post-close audio to be dropped silently, got %v", err)
	}
	if stt.audioFrames() != 1 {
		t.Fatalf("expected no audio forwarded after close")
	}
}

func TestSessionIgnoresMalformedMetadata(t *testing.T) {
	conn := &clientConnStub{}
	stt := &speechToTextStub{}
	llm := &llmStub{}
	session := startedSession(t, conn, stt, llm, WithFlushInterval(time.Hour))

	session.HandleMetadata([]byte("{not json"))
	session.HandleMetadata([]byte(`{"type":"hello"}`))

	if messages := conn.snapshot(); len(messages) != 0 {
		t.Fatalf("expected metadata to produce no client messages, got %d", len(messages))
	}
}
