package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.uber.org/zap"
)

type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, args...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, args...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, args...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, args...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}

// New builds the process logger. format is "json" (slog JSON handler writing
// to w) or "zap" (zap production config, stderr). The returned func flushes
// buffered output and should be deferred by the caller.
func New(format string, w io.Writer) (Logger, func(), error) {
	switch format {
	case "", "json":
		return NewSlogLogger(slog.New(slog.NewJSONHandler(w, nil))), func() {}, nil
	case "text":
		return NewSlogLogger(slog.New(slog.NewTextHandler(w, nil))), func() {}, nil
	case "zap":
		zl, err := zap.NewProduction()
		if err != nil {
			return nil, nil, fmt.Errorf("zap init: %w", err)
		}
		l := NewZapLogger(zl)
		return l, func() { _ = l.Sync() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", format)
	}
}
