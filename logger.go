package topkapi

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// Logger wraps slog.Logger with sketch-specific helpers so that lifecycle
// events carry consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that writes JSON to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithShape tags every record with the grid dimensions.
func (l *Logger) WithShape(s Shape) *Logger {
	return &Logger{Logger: l.Logger.With(
		"width", s.Width,
		"depth", s.Depth,
		"max_key_len", s.MaxKeyLen,
	)}
}

// WithSegment tags every record with a shared segment name.
func (l *Logger) WithSegment(name string) *Logger {
	return &Logger{Logger: l.Logger.With("segment", name)}
}

// LogAllocate logs the creation of a shared segment.
func (l *Logger) LogAllocate(ctx context.Context, name string, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "shared allocate failed", "segment", name, "error", err)
		return
	}
	l.InfoContext(ctx, "shared segment allocated",
		"segment", name,
		"size", humanize.IBytes(uint64(size)),
	)
}

// LogAttach logs a borrower attaching to a shared segment.
func (l *Logger) LogAttach(ctx context.Context, name string, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "shared attach failed", "segment", name, "error", err)
		return
	}
	l.InfoContext(ctx, "shared segment attached",
		"segment", name,
		"size", humanize.IBytes(uint64(size)),
	)
}

// LogRelease logs the teardown of a shared handle.
func (l *Logger) LogRelease(ctx context.Context, name string, unlinked bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "shared release failed", "segment", name, "error", err)
		return
	}
	l.InfoContext(ctx, "shared segment released", "segment", name, "unlinked", unlinked)
}

// LogSave logs a save to path.
func (l *Logger) LogSave(ctx context.Context, path string, size int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed", "path", path, "error", err)
		return
	}
	l.InfoContext(ctx, "sketch saved", "path", path, "size", humanize.IBytes(uint64(size)))
}

// LogLoad logs a load from path.
func (l *Logger) LogLoad(ctx context.Context, path string, size int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed", "path", path, "error", err)
		return
	}
	l.InfoContext(ctx, "sketch loaded", "path", path, "size", humanize.IBytes(uint64(size)))
}

// LogMerge logs a completed or failed merge.
func (l *Logger) LogMerge(ctx context.Context, nAdded uint64, elapsed time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "merge failed", "error", err)
		return
	}
	l.DebugContext(ctx, "merge completed",
		"n_added", humanize.Comma(int64(nAdded)),
		"elapsed", elapsed,
	)
}

// LogCandidates logs a candidate set regeneration.
func (l *Logger) LogCandidates(ctx context.Context, threshold uint32, found int) {
	l.DebugContext(ctx, "candidate set regenerated", "threshold", threshold, "candidates", found)
}
