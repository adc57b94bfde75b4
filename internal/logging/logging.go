// Package logging centralizes the go-logging setup shared by every
// package in this module: one formatted stderr backend, one logger
// per package.
package logging

import (
	"os"

	logging "github.com/op/go-logging"
)

var format = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.4s} [%{module}] %{message}`,
)

func init() {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, format)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(logging.INFO, "")
	logging.SetBackend(leveled)
}

// Get returns a named logger, obtained once at package init time.
func Get(module string) *logging.Logger {
	return logging.MustGetLogger(module)
}

// SetLevel adjusts the global log level; cmd/lockd calls it with the
// configured log_level.
func SetLevel(level logging.Level) {
	logging.SetLevel(level, "")
}

// ParseLevel wraps logging.LogLevel for callers that only have a string.
func ParseLevel(s string) (logging.Level, error) {
	return logging.LogLevel(s)
}
