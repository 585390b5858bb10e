package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"
)

var (
	level = new(slog.LevelVar)
	base  = newLogger(os.Stderr)
)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}))
}

// SetOutput redirects all log output, mainly for tests.
func SetOutput(w io.Writer) {
	base = newLogger(w)
}

func SetDebugMode(enabled bool) {
	if enabled {
		level.Set(slog.LevelDebug)
		Debug("Debug mode enabled")
	} else {
		level.Set(slog.LevelInfo)
	}
}

func Debug(format string, args ...interface{}) {
	output(slog.LevelDebug, format, args...)
}

func Info(format string, args ...interface{}) {
	output(slog.LevelInfo, format, args...)
}

func Warn(format string, args ...interface{}) {
	output(slog.LevelWarn, format, args...)
}

func Error(format string, args ...interface{}) {
	output(slog.LevelError, format, args...)
}

// output records the caller of Debug/Info/Warn/Error as the source.
func output(lvl slog.Level, format string, args ...interface{}) {
	ctx := context.Background()
	if !base.Enabled(ctx, lvl) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), lvl, fmt.Sprintf(format, args...), pcs[0])
	_ = base.Handler().Handle(ctx, r)
}

// LogOperation logs the outcome of a note-level operation with structured fields.
func LogOperation(op, noteID string, started time.Time, err error) {
	if err != nil {
		base.Error("operation failed",
			"op", op,
			"note_id", noteID,
			"duration", time.Since(started),
			"error", err,
		)
		return
	}
	base.Debug("operation completed",
		"op", op,
		"note_id", noteID,
		"duration", time.Since(started),
	)
}
