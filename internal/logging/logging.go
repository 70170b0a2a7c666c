// Package logging configures the process-wide charmbracelet logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
)

// Setup applies level to the default logger and, when file is set, sends
// log output to that file. The returned closer releases the file.
func Setup(level, file string) (func() error, error) {
	if err := SetLevel(level); err != nil {
		return nil, err
	}
	if file == "" {
		return func() error { return nil }, nil
	}

	f, err := OpenFile(file)
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.RFC3339)
	log.Debug("Logging to file", "path", f.Name())
	return f.Close, nil
}

// SetLevel changes the level of the default logger.
func SetLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	return nil
}

// OpenFile opens path for appending, expanding a leading ~ and creating
// missing directories.
func OpenFile(path string) (*os.File, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("unable to expand log path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(expanded, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	return f, nil
}

// New returns a prefixed logger for one component. It copies the default
// logger's current output and level, so call it after Setup.
func New(component string) *log.Logger {
	return log.Default().WithPrefix(component)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
