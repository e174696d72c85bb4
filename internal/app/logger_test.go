package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "production", LogFormat: "json"})
	logger.Debug("hidden")
	logger.Info("receiving recorded", "line_id", "ACME_0000001")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "receiving recorded", entry["msg"])
	require.Equal(t, "ACME_0000001", entry["line_id"])
	require.Equal(t, "odyssey-wms", entry["service"])
	require.Equal(t, "production", entry["env"])
	require.Contains(t, entry, "source")
}

func TestNewLoggerDevelopmentIsVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "development", LogFormat: "pretty"})
	logger.Debug("cache miss")
	require.Contains(t, buf.String(), "cache miss")
}
