package relay

import (
	"testing"
	"time"
)

func TestTranscriptBufferJoinsFragmentsWithSingleSpaces(t *testing.T) {
	buffer := newTranscriptBuffer()
	buffer.Append("Tell me about")
	buffer.Append("your last project.")

	if got := buffer.Drain(); got != "Tell me about your last project." {
		t.Fatalf("expected joined utterance, got %q", got)
	}
	if buffer.Len() != 0 {
		t.Fatalf("expected buffer to be empty after drain, got %d fragments", buffer.Len())
	}
}

func TestTranscriptBufferDrainOnEmptyBuffer(t *testing.T) {
	buffer := newTranscriptBuffer()

	if got := buffer.Drain(); got != "" {
		t.Fatalf("expected empty drain result, got %q", got)
	}
	if got := buffer.Drain(); got != "" {
		t.Fatalf("expected drain to stay empty, got %q", got)
	}
	if buffer.Len() != 0 {
		t.Fatalf("expected buffer to stay empty")
	}
}

func TestTranscriptBufferTracksLastEvent(t *testing.T) {
	buffer := newTranscriptBuffer()
	created := buffer.LastEvent()

	appended := created.Add(time.Second)
	buffer.appendAt("hello", appended)
	if got := buffer.LastEvent(); !got.Equal(appended) {
		t.Fatalf("expected last event %v, got %v", appended, got)
	}

	drained := appended.Add(time.Second)
	buffer.drainAt(drained)
	if got := buffer.LastEvent(); !got.Equal(drained) {
		t.Fatalf("expected last event reset to drain time %v, got %v", drained, got)
	}
}
