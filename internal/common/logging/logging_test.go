package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"WARNING", WarnLevel},
		{"WARN", WarnLevel},
		{"ERROR", ErrorLevel},
		{"garbage", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "ParseLevel(%q)", tt.in)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{
		Level:  InfoLevel,
		Format: "json",
		Output: &buf,
	})
	require.NoError(t, err)

	logger.Info("download complete", Field{"region", "europe"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "download complete", entry["msg"])
	assert.Equal(t, "europe", entry["region"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{
		Level:  InfoLevel,
		Format: "text",
		Output: &buf,
	})
	require.NoError(t, err)

	logger.Info("filter complete")

	out := buf.String()
	assert.Contains(t, out, "filter complete")
	assert.False(t, json.Valid(buf.Bytes()), "text format should not be JSON")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{
		Level:  WarnLevel,
		Format: "text",
		Output: &buf,
	})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("also hidden")
	logger.Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{
		Level:  InfoLevel,
		Format: "json",
		Output: &buf,
	})
	require.NoError(t, err)

	logger.WithFields(Field{"job", "osm-ingest"}).Info("starting")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "osm-ingest", entry["job"])
}
