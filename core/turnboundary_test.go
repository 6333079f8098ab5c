package relay

import (
	"testing"
	"time"
)

func TestEvaluateDetectsTerminalPunctuation(t *testing.T) {
	detector := NewBoundaryDetector(3 * time.Second)
	now := time.Now()

	for _, fragment := range []string{
		"Tell me about your last project.",
		"How are you today?",
		"That's great!",
		"Trailing whitespace too.  ",
		"Or a newline?\n",
	} {
		// no elapsed time at all; punctuation alone has to decide
		if !detector.Evaluate(fragment, now, now) {
			t.Errorf("expected boundary for %q", fragment)
		}
	}
}

func TestEvaluateIgnoresElapsedTimeOnPunctuation(t *testing.T) {
	detector := NewBoundaryDetector(3 * time.Second)
	now := time.Now()

	if !detector.Evaluate("Done.", now, now.Add(-10*time.Millisecond)) {
		t.Fatalf("expected boundary independent of elapsed time")
	}
}

func TestEvaluateUsesPauseThresholdWithoutPunctuation(t *testing.T) {
	detector := NewBoundaryDetector(3 * time.Second)
	now := time.Now()

	if detector.Evaluate("so anyway", now, now.Add(-2*time.Second)) {
		t.Fatalf("expected no boundary below pause threshold")
	}
	if !detector.Evaluate("so anyway", now, now.Add(-3500*time.Millisecond)) {
		t.Fatalf("expected boundary past pause threshold")
	}
}

func TestEvaluateFirstDelayedFragmentIsItsOwnTurn(t *testing.T) {
	detector := NewBoundaryDetector(3 * time.Second)

	// lastFragment equals the moment the buffer was last cleared, so a
	// single fragment arriving after a long gap closes the turn on its own.
	cleared := time.Now()
	arrived := cleared.Add(4 * time.Second)
	if !detector.Evaluate("so anyway", arrived, cleared) {
		t.Fatalf("expected single delayed fragment to complete a turn")
	}
}

func TestNewBoundaryDetectorDefaultsThreshold(t *testing.T) {
	detector := NewBoundaryDetector(0)
	if got := detector.PauseThreshold(); got != DefaultPauseThreshold {
		t.Fatalf("expected default pause threshold, got %v", got)
	}

	detector = NewBoundaryDetector(500 * time.Millisecond)
	if got := detector.PauseThreshold(); got != 500*time.Millisecond {
		t.Fatalf("expected configured pause threshold, got %v", got)
	}
}
