package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "info", "json")
	require.NoError(t, err)

	log.Debug("hidden")
	log.With("component", "crawler").Info("crawl finished", "pages_visited", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "crawl finished", entry["msg"])
	assert.Equal(t, "crawler", entry["component"])
	assert.Equal(t, 3.0, entry["pages_visited"])
}

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "debug", "text")
	require.NoError(t, err)

	log.Debug("skip visited", "url", "https://example.com/a")
	assert.Contains(t, buf.String(), "msg=\"skip visited\"")
	assert.Contains(t, buf.String(), "url=https://example.com/a")
}

func TestNewWithWriterErrors(t *testing.T) {
	_, err := NewWithWriter(&bytes.Buffer{}, "loud", "json")
	assert.ErrorContains(t, err, "unsupported log level")

	_, err = NewWithWriter(&bytes.Buffer{}, "info", "xml")
	assert.ErrorContains(t, err, "unsupported log format")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
