package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := Setup("escrowd", "test", Options{Level: "debug", Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("hello", slog.String("component", "engine"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "hello", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "escrowd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := Setup("escrowd", "", Options{Level: "warn", Output: &buf})
	require.NoError(t, err)
	logger.Info("dropped")
	require.Zero(t, buf.Len())

	_, _, err = Setup("escrowd", "", Options{Level: "verbose"})
	require.Error(t, err)
}

func TestSetupWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowd.log")
	var buf bytes.Buffer
	logger, closer, err := Setup("escrowd", "", Options{File: path, MaxSizeMB: 1, Output: &buf})
	require.NoError(t, err)
	logger.Info("persisted")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "persisted")
	require.Contains(t, buf.String(), "persisted")
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("token", "abc").Value.String())
	require.Equal(t, "engine", MaskField("component", "engine").Value.String())
	require.Equal(t, "Bearer "+RedactedValue, MaskField("authorization", "Bearer abc.def").Value.String())
	require.Equal(t, "Bearer "+RedactedValue, MaskField("reason", "bearer leaked").Value.String())
	require.Equal(t, "", MaskField("token", "").Value.String())
	require.Contains(t, RedactionAllowlist(), "route")
}
