package admin_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies no goroutines leak across the admin package's tests.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
