package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the relay.
type Metrics struct {
	// Session metrics
	ActiveSessions prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// Audio metrics
	AudioBytesForwarded prometheus.Counter

	// Transcript metrics
	TranscriptsReceived *prometheus.CounterVec
	TurnsDetected       prometheus.Counter

	// LLM metrics
	LLMRequests prometheus.Counter
	LLMFailures prometheus.Counter
	LLMDuration prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "copilot_active_sessions",
			Help: "Current number of connected client sessions",
		}),
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "copilot_sessions_total",
			Help: "Total number of client sessions accepted",
		}),
		AudioBytesForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "copilot_audio_bytes_forwarded_total",
			Help: "Total audio bytes forwarded to the transcription stream",
		}),
		TranscriptsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "copilot_transcripts_received_total",
			Help: "Total transcript fragments received from the transcription stream",
		}, []string{"kind"}),
		TurnsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "copilot_turns_detected_total",
			Help: "Total completed utterances dispatched for a response",
		}),
		LLMRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "copilot_llm_requests_total",
			Help: "Total response-generation requests sent to the LLM",
		}),
		LLMFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "copilot_llm_failures_total",
			Help: "Total response-generation requests that failed",
		}),
		LLMDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "copilot_llm_request_duration_seconds",
			Help:    "Duration of response-generation requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1.7 minutes
		}),
	}
}
