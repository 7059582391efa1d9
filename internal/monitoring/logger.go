// Package monitoring carries the pluggable diagnostic logger shared by the
// components that run outside the request path: the CSV loader and the NMEA
// feed tap. Both emit row-level skip notices that callers sometimes need to
// silence (bulk replays) or capture (tests).
package monitoring

import "log"

// Logf records a diagnostic event. It defaults to log.Printf and may be
// swapped with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. A nil f mutes diagnostics entirely.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
