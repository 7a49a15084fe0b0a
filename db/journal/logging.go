package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v3"
)

// badgerLoggerAdapter routes badger's printf style logging into slog. Calls
// below level are dropped before they are formatted.
type badgerLoggerAdapter struct {
	slogger *slog.Logger
	level   slog.Level
}

func (b *badgerLoggerAdapter) Errorf(format string, args ...interface{}) {
	b.log(slog.LevelError, format, args)
}

func (b *badgerLoggerAdapter) Warningf(format string, args ...interface{}) {
	b.log(slog.LevelWarn, format, args)
}

// Infof is routine table and value log activity; it is emitted at debug.
func (b *badgerLoggerAdapter) Infof(format string, args ...interface{}) {
	b.log(slog.LevelInfo, format, args)
}

func (b *badgerLoggerAdapter) Debugf(format string, args ...interface{}) {
	b.log(slog.LevelDebug, format, args)
}

func (b *badgerLoggerAdapter) log(level slog.Level, format string, args []interface{}) {
	if level < b.level {
		return
	}
	emit := level
	if emit == slog.LevelInfo {
		emit = slog.LevelDebug
	}
	ctx := context.Background()
	if !b.slogger.Enabled(ctx, emit) {
		return
	}
	b.slogger.Log(ctx, emit, fmt.Sprintf(format, args...))
}

func newLogger(slogger *slog.Logger, level slog.Level) badger.Logger {
	return &badgerLoggerAdapter{slogger: slogger, level: level}
}
