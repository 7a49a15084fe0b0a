package journal

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestBadgerLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(bufferLogger(&buf), slog.LevelWarn)

	l.Debugf("compaction %d", 1)
	l.Infof("flushed %s", "memtable")
	assert.Empty(t, buf.String())

	l.Warningf("slow write %d", 2)
	l.Errorf("disk %s", "full")
	out := buf.String()
	assert.Contains(t, out, "level=WARN msg=\"slow write 2\"")
	assert.Contains(t, out, "level=ERROR msg=\"disk full\"")
}

func TestBadgerLogger_InfoEmittedAtDebug(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(bufferLogger(&buf), slog.LevelDebug)

	l.Infof("opened %s", "archive")
	assert.Contains(t, buf.String(), "level=DEBUG msg=\"opened archive\"")
}

func TestBadgerLogger_RespectsHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	l := newLogger(handler, slog.LevelDebug)

	l.Warningf("ignored")
	assert.Empty(t, buf.String())
}
