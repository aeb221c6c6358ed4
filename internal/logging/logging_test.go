package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestJSONHandlerFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, "json", slog.LevelWarn, false))
	l.Info("hidden")
	l.Warn("shown", "instrument", "memes")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "memes", rec["instrument"])
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.Format = "text"
	cfg.FilePath = path

	l, closer, err := New(cfg)
	require.NoError(t, err)
	l.Info("refresh cycle complete", "cycle", 1)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "refresh cycle complete")
}

func TestNewRejectsUnknownOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "syslog"
	_, _, err := New(cfg)
	assert.Error(t, err)
}
