// Package logging builds the root zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where logs go.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// File, when set, receives JSON logs rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Console receives human-readable logs. Nil means stderr.
	Console io.Writer

	// Quiet drops console output when File is set.
	Quiet bool
}

// New returns the root logger and a closer for any file it opened.
func New(opts Options) (zerolog.Logger, func(), error) {
	closer := func() {}

	level := strings.TrimSpace(opts.Level)
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, closer, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	var writers []io.Writer

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return zerolog.Logger{}, closer, fmt.Errorf("create logs dir: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		closer = func() { _ = rotator.Close() }
		writers = append(writers, rotator)
	}

	if opts.File == "" || !opts.Quiet {
		writers = append(writers, consoleWriter(opts.Console))
	}

	var out io.Writer = writers[0]
	if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	l := zerolog.New(out).
		With().
		Timestamp().
		Logger().
		Level(lvl)

	return l, closer, nil
}

// consoleWriter pretty-prints when w is a terminal and writes JSON otherwise.
func consoleWriter(w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}
	if !IsTerminal(w) {
		return w
	}
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
