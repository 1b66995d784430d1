package testutil

import (
	"testing"
	"time"
)

// Eventually polls fn until it returns nil or the timeout passes, then
// fails the test with the last error seen.
func Eventually(t testing.TB, timeout time.Duration, interval time.Duration, fn func() error) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	lastErr := fn()
	for lastErr != nil && time.Now().Before(deadline) {
		time.Sleep(interval)
		lastErr = fn()
	}
	if lastErr != nil {
		t.Fatalf("condition not met within %s: %v", timeout, lastErr)
	}
}
