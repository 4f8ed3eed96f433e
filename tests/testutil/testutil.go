// Package testutil holds fixtures shared by the migrator's package tests:
// a throwaway destination store fed from a temporary source cache, and
// helpers for driving gin handlers and waiting on background jobs.
package testutil

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestContext is the handler context of one RunHTTPTestCase call together
// with what the handler wrote.
type TestContext struct {
	Context  *gin.Context
	Recorder *httptest.ResponseRecorder
}

// ResponseBody returns the bytes the handler wrote.
func (tc *TestContext) ResponseBody() []byte {
	return tc.Recorder.Body.Bytes()
}

// RequireEventually polls condition every interval and fails the test
// once timeout passes without it holding. Scheduler jobs finish on a
// worker goroutine, so tests observe them this way.
func RequireEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...any) {
	t.Helper()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		if condition() {
			return
		}
		select {
		case <-deadline:
			require.Fail(t, "condition not met within "+timeout.String(), msgAndArgs...)
			return
		case <-ticker.C:
		}
	}
}
