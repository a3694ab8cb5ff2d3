// Package logging tests for structured JSON logging.
package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "line: %s", line)
		entries = append(entries, entry)
	}
	return entries
}

// =====================================================
// Initialization
// =====================================================

func TestInit_idempotent(t *testing.T) {
	global = nil
	once = sync.Once{}
	t.Cleanup(func() {
		global = nil
		once = sync.Once{}
	})

	var buf1, buf2 bytes.Buffer
	Init(&buf1, LevelInfo)
	first := Get()

	Init(&buf2, LevelDebug)
	assert.Same(t, first, Get())

	Info("hello")
	assert.NotEmpty(t, buf1.String())
	assert.Empty(t, buf2.String())
}

func TestGet_concurrentFirstUse(t *testing.T) {
	global = nil
	once = sync.Once{}
	t.Cleanup(func() {
		global = nil
		once = sync.Once{}
	})

	loggers := make([]*Logger, 16)
	var wg sync.WaitGroup
	for i := range loggers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loggers[i] = Get()
		}(i)
	}
	wg.Wait()

	require.NotNil(t, loggers[0])
	for _, l := range loggers[1:] {
		assert.Same(t, loggers[0], l)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"", LevelInfo},
		{"warning", LevelWarn},
		{" error ", LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

// =====================================================
// Output format
// =====================================================

func TestLogger_jsonEntry(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	l.Info("drain completed", map[string]interface{}{"succeeded": 2, "failed": 0})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "drain completed", entry["message"])
	assert.NotEmpty(t, entry["timestamp"])

	ctx, ok := entry["context"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, ctx["succeeded"])
	assert.EqualValues(t, 0, ctx["failed"])
}

func TestLogger_errorField(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	l.Error("append failed", errors.New("disk full"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR", entries[0]["level"])
	assert.Equal(t, "disk full", entries[0]["error"])
	assert.NotContains(t, entries[0], "context")
}

func TestLogger_minLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error", nil)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "ERROR", entries[1]["level"])
}

func TestLogger_mergesContexts(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.Info("merged", map[string]interface{}{"a": 1}, map[string]interface{}{"b": "two"})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	ctx := entries[0]["context"].(map[string]interface{})
	assert.EqualValues(t, 1, ctx["a"])
	assert.Equal(t, "two", ctx["b"])
}
