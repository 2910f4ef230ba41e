package log

import (
	"testing"
)

// NewTestingLogger returns a Logger that writes through t.Log when the tests
// run with the verbose (-v) flag, and a no-op Logger otherwise.
func NewTestingLogger(t testing.TB) Logger {
	if !testing.Verbose() {
		return NewNopLogger()
	}

	return NewTestingLoggerWithLevel(t, LogLevelDebug)
}

// NewTestingLoggerWithLevel is NewTestingLogger with an explicit level that is
// applied regardless of the verbose flag.
func NewTestingLoggerWithLevel(t testing.TB, level string) Logger {
	logger, err := NewLogger(&testingWriter{t: t}, LogFormatPlain, level)
	if err != nil {
		t.Fatalf("failed to create testing logger: %v", err)
	}
	return logger
}

type testingWriter struct {
	t testing.TB
}

func (tw *testingWriter) Write(in []byte) (int, error) {
	tw.t.Log(string(in))
	return len(in), nil
}
