package relay

import (
	"strings"
	"time"
)

// DefaultPauseThreshold is the silence gap after which buffered fragments
// are treated as a completed turn even without terminal punctuation.
const DefaultPauseThreshold = 3 * time.Second

// BoundaryDetector decides whether a finalized transcript fragment completes
// the current utterance.
type BoundaryDetector struct {
	pauseThreshold time.Duration
}

func NewBoundaryDetector(pauseThreshold time.Duration) BoundaryDetector {
	if pauseThreshold <= 0 {
		pauseThreshold = DefaultPauseThreshold
	}
	return BoundaryDetector{pauseThreshold: pauseThreshold}
}

// Evaluate reports whether fragment closes the utterance it belongs to.
// A fragment ending in terminal punctuation is always a boundary; otherwise
// the elapsed time since the previous fragment has to exceed the pause
// threshold. lastFragment is the arrival time of the previous fragment, or
// the time the buffer was last cleared when the fragment opens an utterance.
func (d BoundaryDetector) Evaluate(fragment string, now, lastFragment time.Time) bool {
	trimmed := strings.TrimRight(fragment, " \t\r\n")
	if strings.HasSuffix(trimmed, ".") ||
		strings.HasSuffix(trimmed, "?") ||
		strings.HasSuffix(trimmed, "!") {
		return true
	}

	return now.Sub(lastFragment) > d.pauseThreshold
}

// PauseThreshold returns the configured silence gap.
func (d BoundaryDetector) PauseThreshold() time.Duration {
	return d.pauseThreshold
}
