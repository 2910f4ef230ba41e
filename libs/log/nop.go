package log

// nopLogger discards everything. Unlike the default logger it can't be
// reconfigured with OverrideWithNewLogger.
type nopLogger struct{}

func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func (l nopLogger) With(...interface{}) Logger { return l }
