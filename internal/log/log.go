// Package log provides leveled, key-value logging for the whole tool.
//
// It is a thin wrapper around charmbracelet/log so call sites stay short:
//
//	log.Debug("mounting filesystem", "source", src, "target", dst)
package log

import (
	"os"

	charm "github.com/charmbracelet/log"
)

var logger = charm.NewWithOptions(os.Stderr, charm.Options{
	ReportTimestamp: true,
})

// Setup configures the global logger. When verbose is true, debug
// messages are emitted as well.
func Setup(verbose bool) {
	if verbose {
		logger.SetLevel(charm.DebugLevel)
	} else {
		logger.SetLevel(charm.InfoLevel)
	}
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, kv ...any) {
	logger.Debug(msg, kv...)
}

// Info logs an informational message with optional key-value pairs.
func Info(msg string, kv ...any) {
	logger.Info(msg, kv...)
}

// Warn logs a warning with optional key-value pairs.
func Warn(msg string, kv ...any) {
	logger.Warn(msg, kv...)
}

// Error logs an error with optional key-value pairs.
func Error(msg string, kv ...any) {
	logger.Error(msg, kv...)
}
