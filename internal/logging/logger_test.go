package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/go-ecommerce-core/internal/config"
)

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, config.LogConfig{Level: "warn", Format: "json"})

	log.Info("dropped")
	log.Warn("kept", "order_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "abc", entry["order_id"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, config.LogConfig{Level: "debug", Format: "text"})
	log.Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
