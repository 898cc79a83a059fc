package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesServiceFieldToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "publish.log")

	logger, closer, err := New("publisher", path)
	require.NoError(t, err)

	logger.WithField("uid", "0301a").Info("published")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "publisher", entry["service"])
	assert.Equal(t, "0301a", entry["uid"])
	assert.Equal(t, "published", entry["msg"])
}

func TestNewWithoutFile(t *testing.T) {
	logger, closer, err := New("svc", "")
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.NoError(t, closer.Close())
}

func TestNewWithConsoleRedirectsOutput(t *testing.T) {
	var buf strings.Builder
	logger, closer, err := NewWithConsole("postctl", "", &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Warn("registry unavailable")
	assert.Contains(t, buf.String(), `"msg":"registry unavailable"`)
	assert.Contains(t, buf.String(), `"service":"postctl"`)
}
