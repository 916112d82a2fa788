// Package logging provides the leveled logging surface the allocator tiers
// call into, backed by a structured slog.Logger.
package logging

import (
	"os"

	"golang.org/x/exp/slog"
)

// Level gates which severities are emitted: each level implies all the
// levels above it.
type Level int

const (
	LevelNone Level = iota
	LevelFatal
	LevelError
	LevelInfo
	LevelDebug
)

var (
	current Level = LevelInfo
	logger        = slog.New(slog.NewTextHandler(os.Stderr))

	// fatalHook runs after a Fatal log line. It defaults to os.Exit(1) but
	// tests override it so a Fatal call doesn't kill the test binary.
	fatalHook = func() { os.Exit(1) }
)

// SetLevel changes the package-wide emission threshold.
func SetLevel(l Level) { current = l }

// SetOutput redirects the underlying handler, primarily for tests that want
// to assert on emitted lines.
func SetOutput(h slog.Handler) { logger = slog.New(h) }

// SetFatalHook overrides what Fatal does after logging, for tests.
func SetFatalHook(fn func()) { fatalHook = fn }

func Debug(msg string, args ...any) {
	if current >= LevelDebug {
		logger.Debug(msg, args...)
	}
}

func Info(msg string, args ...any) {
	if current >= LevelInfo {
		logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if current >= LevelError {
		logger.Error(msg, args...)
	}
}

func Fatal(msg string, args ...any) {
	if current >= LevelFatal {
		logger.Error(msg, append(args, "fatal", true)...)
	}
	fatalHook()
}
