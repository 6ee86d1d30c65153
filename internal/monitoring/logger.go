// Package monitoring holds the node's diagnostic logger and link counters.
package monitoring

import "log"

// Logf receives every diagnostic line the node emits. It is log.Printf
// unless SetLogger installed something else.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps Logf. A nil f mutes logging.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}

// Component returns a logger that prefixes every line with "[name] ". Each
// call goes through the current Logf, so a later SetLogger still applies.
func Component(name string) func(format string, v ...interface{}) {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
