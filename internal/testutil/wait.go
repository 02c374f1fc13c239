// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"
	"time"
)

// Eventually polls cond until it returns true or timeout elapses.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v: %s", timeout, msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Receive waits for one value on ch.
func Receive[T any](t testing.TB, ch <-chan T, timeout time.Duration) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		var zero T
		t.Fatalf("timed out after %v waiting for value", timeout)
		return zero
	}
}
