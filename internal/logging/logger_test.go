package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, levelFromString(" DEBUG "))
	assert.Equal(t, slog.LevelWarn, levelFromString("warning"))
	assert.Equal(t, slog.LevelError, levelFromString("error"))
	assert.Equal(t, slog.LevelInfo, levelFromString("verbose"))
}

func TestComponentLogsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := Component(newLogger(&buf, "info"), "matcher")
	l.Debug("hidden")
	l.Info("match completed", "returned", 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "match completed", rec["msg"])
	assert.Equal(t, "matcher", rec["component"])
	assert.Equal(t, float64(2), rec["returned"])
	assert.Contains(t, rec, "source")
}
