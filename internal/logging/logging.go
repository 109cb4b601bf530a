// Package logging builds the charmbracelet loggers used across taskd.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a logger writing to w with timestamps at the given level.
// The writer defaults to os.Stderr.
func New(w io.Writer, level string) (*log.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           lvl,
	}), nil
}

// File is a size-rotated log file.
type File = lumberjack.Logger

// OpenFile returns a rotating writer for path.
func OpenFile(path string) *File {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
}

// NewFile creates a logger that writes logfmt lines to a rotating file.
// The returned closer flushes and closes the file.
func NewFile(path, level string) (*log.Logger, io.Closer, error) {
	f := OpenFile(path)
	logger, err := New(f, level)
	if err != nil {
		return nil, nil, err
	}
	logger.SetFormatter(log.LogfmtFormatter)
	return logger, f, nil
}
