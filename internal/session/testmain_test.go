package session_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies no goroutines leak across the session package's tests.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
