package ariesdb

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// testLogger returns a logrus.Logger that discards output, so test runs
// stay quiet while still exercising every logging call site.
func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newTestEngine opens a fresh engine backed by a temp-dir data file.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	e, err := Open(path, &Options{SyncOnCommit: true, Logger: testLogger()})
	require.New(t).NoError(err)
	t.Cleanup(func() { e.Close() })
	return e
}
