// Package monitoring holds the diagnostic logger shared by the capture
// packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger so tests can capture or mute capture output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a message through Logf with the WARNING prefix used across the
// recording tools.
func Warnf(format string, v ...interface{}) {
	Logf("WARNING: "+format, v...)
}
