package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	testChdir(t, t.TempDir())
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("data", "posts.json"), cfg.PostsFile)
	assert.Equal(t, filepath.Join("data", "queue.json"), cfg.QueueFile)
	assert.Equal(t, 12, cfg.PublishHour)
	assert.Equal(t, 3, cfg.MaxRelayAttempts)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "https://graph.instagram.com/v21.0", cfg.Instagram.APIURL)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	testChdir(t, t.TempDir())
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("DATA_DIR", "/var/lib/postpilot")
	t.Setenv("PUBLISH_HOUR", "9")
	t.Setenv("MAX_RELAY_ATTEMPTS", "0")
	t.Setenv("X_BEARER_TOKEN", "token")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/postpilot/posts.json", cfg.PostsFile)
	assert.Equal(t, 9, cfg.PublishHour)
	assert.Equal(t, 1, cfg.MaxRelayAttempts, "attempt budgets are clamped to at least one")
	assert.Equal(t, "token", cfg.X.BearerToken)
}

func TestFromViperRejectsBadValues(t *testing.T) {
	t.Run("publish hour out of range", func(t *testing.T) {
		v := viper.New()
		setDefaults(v)
		v.Set("TIMEZONE", "UTC")
		v.Set("PUBLISH_HOUR", 24)
		_, err := fromViper(v)
		assert.Error(t, err)
	})

	t.Run("unknown time zone", func(t *testing.T) {
		v := viper.New()
		setDefaults(v)
		v.Set("TIMEZONE", "Mars/Olympus")
		_, err := fromViper(v)
		assert.ErrorContains(t, err, "TIMEZONE")
	})
}

// testChdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func testChdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
