// Package xlog is a thin context-first wrapper over log/slog.
//
// It exists so that racelock and cache never call slog directly: every call
// site carries a context.Context, and the level can be changed at runtime
// without threading a new logger through every option struct.
package xlog

import (
	"context"
	"log/slog"
	"time"
)

// Logger is the minimal structured-logging surface racelock and cache
// depend on. Nil-safe: a nil *Logger silently drops everything.
type Logger struct {
	handler  slog.Handler
	levelVar *slog.LevelVar
}

// New wraps an existing *slog.Logger. A nil logger falls back to
// slog.Default().
func New(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{handler: base.Handler()}
}

// NewWithLevel builds a Logger with its own dynamically adjustable level,
// writing through handler (nil uses slog.Default()'s handler).
func NewWithLevel(handler slog.Handler, level slog.Level) *Logger {
	var lv slog.LevelVar
	lv.Set(level)
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &Logger{handler: handler, levelVar: &lv}
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if l == nil || l.handler == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if l.levelVar != nil && level < l.levelVar.Level() {
		return
	}
	if !l.handler.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.Add(args...)
	_ = l.handler.Handle(ctx, r)
}

// Debug logs at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

// With returns a derived Logger with the given attributes attached to every
// subsequent record. The derived logger shares the parent's level.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.handler == nil {
		return l
	}
	return &Logger{
		handler:  slog.New(l.handler).With(args...).Handler(),
		levelVar: l.levelVar,
	}
}

// SetLevel adjusts the logger's level at runtime, if it was built with
// NewWithLevel. A no-op otherwise.
func (l *Logger) SetLevel(level slog.Level) {
	if l != nil && l.levelVar != nil {
		l.levelVar.Set(level)
	}
}
