package testutil

import (
	"testing"
	"time"
)

const pollInterval = 10 * time.Millisecond

// Eventually polls cond until it holds or d elapses, then fails t with msg.
func Eventually(t testing.TB, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s: %s", d, msg)
		}
		time.Sleep(pollInterval)
	}
}
