// Package testutil holds small helpers shared by fuzz targets and the
// network tests.
package testutil

import (
	"testing"
	"time"
)

const (
	// DefaultMaxFuzzBytes matches the largest line the server accepts.
	DefaultMaxFuzzBytes = 64 << 10
	DefaultFuzzTimeout  = 200 * time.Millisecond
)

// CapBytes truncates b to max bytes; max <= 0 disables the cap.
func CapBytes(b []byte, max int) []byte {
	if max > 0 && len(b) > max {
		return b[:max]
	}
	return b
}

// WithTimeout fails t when fn has not returned within d. fn runs on another
// goroutine, so it must report failures with t.Errorf, not t.Fatalf.
func WithTimeout(t testing.TB, d time.Duration, fn func()) {
	t.Helper()
	if d <= 0 {
		d = DefaultFuzzTimeout
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		t.Fatalf("did not finish within %s", d)
	}
}
