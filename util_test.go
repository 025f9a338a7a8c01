package syncore

import (
	"testing"
	"time"

	"github.com/llxisdsh/syncore/internal/opt"
)

// stressLoops scales iteration counts down under the race detector.
func stressLoops(n int) int {
	if opt.Race_ {
		return max(n/10, 1)
	}
	return n
}

// waitFor polls cond until it holds or fails the test after a deadline.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// mustPanic fails the test unless fn panics.
func mustPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s did not panic", what)
		}
	}()
	fn()
}

// closed reports whether ch is closed without blocking.
func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
