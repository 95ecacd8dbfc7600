package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	Use(zap.New(core))
	t.Cleanup(func() {
		require.NoError(t, SetLevel(LevelInfo))
	})
	return logs
}

func TestKeyValues(t *testing.T) {
	logs := observe(t)

	Info("days computed", "first", "2005-01-01", "count", 7)

	entries := logs.FilterMessage("days computed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, map[string]any{"first": "2005-01-01", "count": int64(7)}, entries[0].ContextMap())
}

func TestErrorPrependsErr(t *testing.T) {
	logs := observe(t)

	Error("fetch failed", errors.New("boom"), "id", "work")

	entries := logs.FilterMessage("fetch failed").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "boom", ctx["err"])
	assert.Equal(t, "work", ctx["id"])
}

func TestSetLevel(t *testing.T) {
	logs := observe(t)

	require.NoError(t, SetLevel(LevelWarn))
	Info("hidden")
	Warn("shown")
	assert.Equal(t, 0, logs.FilterMessage("hidden").Len())
	assert.Equal(t, 1, logs.FilterMessage("shown").Len())

	require.NoError(t, SetLevel(LevelDebug))
	Debug("debug shown")
	assert.Equal(t, 1, logs.FilterMessage("debug shown").Len())

	assert.Error(t, SetLevel("LOUD"))
}

func TestInitRejectsUnknownEnvironment(t *testing.T) {
	assert.Error(t, Init("staging", LevelInfo))
}
