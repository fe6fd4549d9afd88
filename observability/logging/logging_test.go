package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("stakingd", "test", Options{Output: &buf, Level: "warn"})
	logger.Info("dropped")
	logger.Warn("kept", MaskField("jwtSecret", "hunter2"), MaskField("holder", "stk1abc"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	require.Equal(t, "WARN", entry["severity"])
	require.Equal(t, "kept", entry["message"])
	require.Equal(t, "stakingd", entry["service"])
	require.Equal(t, "test", entry["env"])
	require.Equal(t, RedactedValue, entry["jwtSecret"])
	require.Equal(t, "stk1abc", entry["holder"])
}

func TestSetupWritesRotatedFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "stakingd.log")
	logger := Setup("stakingd", "", Options{Output: &buf, File: path})
	logger.Info("hello")
	require.FileExists(t, path)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestSetupScrubsCredentialKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("stakingd", "", Options{Output: &buf})
	logger.Info("auth", "hmacSecret", "s3cret", "bearerToken", "abc", "tokenId", "7", "holder", "stk1abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, RedactedValue, entry["hmacSecret"])
	require.Equal(t, RedactedValue, entry["bearerToken"])
	require.Equal(t, "7", entry["tokenId"])
	require.Equal(t, "stk1abc", entry["holder"])
}
