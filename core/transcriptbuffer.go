package relay

import (
	"strings"
	"sync"
	"time"
)

// transcriptBuffer accumulates finalized transcript fragments for the
// utterance currently in progress. Only final fragments are appended, in
// arrival order. lastEvent tracks the arrival time of the newest fragment,
// or the moment the buffer was last cleared when it is empty.
type transcriptBuffer struct {
	mu        sync.Mutex
	fragments []string
	lastEvent time.Time
}

func newTranscriptBuffer() *transcriptBuffer {
	return &transcriptBuffer{lastEvent: time.Now()}
}

func (b *transcriptBuffer) Append(fragment string) {
	b.appendAt(fragment, time.Now())
}

func (b *transcriptBuffer) appendAt(fragment string, at time.Time) {
	b.mu.Lock()
	b.fragments = append(b.fragments, fragment)
	b.lastEvent = at
	b.mu.Unlock()
}

// Drain joins the buffered fragments with single spaces, trims the result
// and empties the buffer. Draining an empty buffer returns "".
func (b *transcriptBuffer) Drain() string {
	return b.drainAt(time.Now())
}

func (b *transcriptBuffer) drainAt(at time.Time) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	text := strings.TrimSpace(strings.Join(b.fragments, " "))
	b.fragments = nil
	b.lastEvent = at
	return text
}

func (b *transcriptBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.fragments)
}

// LastEvent returns the timestamp of the newest fragment, or of the last
// clear when the buffer is empty.
func (b *transcriptBuffer) LastEvent() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.lastEvent
}
