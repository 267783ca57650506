package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithWriters_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriters("debug", "json", &buf)
	require.NoError(t, err)

	logger.Debug("probe", zap.String("backend", "mongo"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "probe", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "mongo", entry["backend"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "caller")
}

func TestNewWithWriters_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriters("warn", "console", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "WARN")
}

func TestNewWithWriters_Invalid(t *testing.T) {
	_, err := NewWithWriters("loud", "console")
	assert.Error(t, err)

	_, err = NewWithWriters("info", "xml")
	assert.Error(t, err)
}
