package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "isl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
workers: 3
exits:
  retention: 30s
  journalDir: /tmp/isl
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, DefaultReductions, cfg.Reductions)
	assert.Equal(t, DefaultMaxFrames, cfg.MaxFrames)
	assert.Equal(t, 30*time.Second, cfg.Exits.Retention)
	assert.Equal(t, "/tmp/isl", cfg.Exits.JournalDir)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileMissing)

	_, err = LoadConfig(writeConfig(t, "workers: [1, 2"))
	assert.ErrorIs(t, err, ErrConfigFileUnmarshallable)

	tests := []struct {
		body string
		want error
	}{
		{"workers: -1", ErrWorkersInvalid},
		{"reductions: -5", ErrReductionsInvalid},
		{"maxFrames: -1", ErrMaxFramesInvalid},
		{"exits:\n  retention: -1s", ErrRetentionInvalid},
		{"logging:\n  level: loud", ErrLogLevelInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, ok := ParseLevel("DEBUG")
	assert.True(t, ok)
	assert.Equal(t, slog.LevelDebug, level)

	level, ok = ParseLevel("")
	assert.True(t, ok)
	assert.Equal(t, slog.LevelInfo, level)

	_, ok = ParseLevel("trace")
	assert.False(t, ok)
}

func TestGenerateConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "isl.yaml")
	generated, err := GenerateConfig(path)
	require.NoError(t, err)

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, generated, loaded)
}
