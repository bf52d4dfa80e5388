package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikid/internal/config"
)

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LogConfig{Level: "info", Format: "console"}, &buf)

	log.Info("hello world")

	output := buf.String()
	assert.Contains(t, output, "hello world")
	assert.NotContains(t, output, "{", "console format should not emit json")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LogConfig{Level: "error", Format: "json"}, &buf)

	log.Error(errors.New("test error"), "an error occurred")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "an error occurred", entry["message"])
	assert.Equal(t, "test error", entry["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LogConfig{Level: "warn", Format: "console"}, &buf)

	log.Info("this should be ignored")
	log.Warn("this should appear")

	output := buf.String()
	assert.NotContains(t, output, "this should be ignored")
	assert.Contains(t, output, "this should appear")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LogConfig{Level: "info", Format: "json"}, &buf)

	log.With(map[string]interface{}{"path": "/page"}).Info("annotated")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "/page", entry["path"])
	assert.Equal(t, "annotated", entry["message"])
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Info("dropped")
	log.Error(errors.New("dropped"), "dropped")
}
