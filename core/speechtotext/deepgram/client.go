package deepgram

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config carries the Deepgram live-transcription settings. The zero value
// is usable except for APIKey; defaults follow the values the browser
// extension records with (webm/opus at 16kHz).
type Config struct {
	APIKey string
	// Endpoint overrides the live listen URL. Tests point it at a local
	// server.
	Endpoint string

	Model          string
	Language       string
	Encoding       string
	SampleRate     int
	UtteranceEndMS int
}

const defaultEndpoint = "wss://api.deepgram.com/v1/listen"

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.Model == "" {
		c.Model = "nova-2"
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.Encoding == "" {
		c.Encoding = "opus"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.UtteranceEndMS == 0 {
		c.UtteranceEndMS = 1000
	}
	return c
}

// TranscriptionClient streams audio to Deepgram's live listen endpoint and
// surfaces transcript fragments through callbacks. One client drives one
// websocket connection; Transcribe must be called before SendAudio.
type TranscriptionClient struct {
	config Config

	conn      *websocket.Conn
	connMu    sync.Mutex
	lastMsgTs time.Time
}

func NewTranscriptionClient(config Config) *TranscriptionClient {
	return &TranscriptionClient{config: config.withDefaults()}
}
