// Package testing switches the process into test mode when imported by a
// test binary, so nothing reaches outbound services by accident.
package testing

import (
	"os"
	stdtesting "testing"
)

// Outbound endpoints are pointed at a closed port rather than left blank,
// so a leaked call fails fast instead of hitting a real default.
var isolatedEnv = map[string]string{
	"STOCKBOOK_TEST_MODE": "1",
	"GOTENBERG_URL":       "http://127.0.0.1:0",
	"MEDIA_UPLOAD_URL":    "http://127.0.0.1:0/upload",
}

func init() {
	for key, value := range isolatedEnv {
		if key == "STOCKBOOK_TEST_MODE" || os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
}

// TestMain lets packages delegate their TestMain here.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
