package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ekisa-team/lector/internal/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(env.Production, WithOutput(&buf))

	log.Info("Artifact ready", "id", "abc")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "Artifact ready", record["msg"])
	assert.Equal(t, "abc", record["id"])
}

func TestNew_DevelopmentRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(env.Development, WithOutput(&buf), WithLevel(slog.LevelWarn))

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_LogToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "lector.log")
	log := New(env.Production, WithOutput(&buf), WithLogToFile(true), WithLogFile(path))

	log.Info("Cache cleared")

	assert.FileExists(t, path)
	assert.Contains(t, buf.String(), "Cache cleared")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
