package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  host: localhost\n"))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "https://graph.facebook.com/v16.0", cfg.Graph.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Graph.Timeout)
	assert.True(t, cfg.Sync.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 100, cfg.Sync.MaxItemsPerPass)
	assert.Equal(t, 10, cfg.Sync.MaxPagesPerPass)
	assert.Equal(t, 1024, cfg.Image.MaxDimension)
	assert.Equal(t, "filesystem", cfg.Blob.Type)
	assert.Equal(t, "./public", cfg.Blob.Root)
	assert.Equal(t, "postgres", cfg.TokenStore.Type)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.RabbitMQ.Enabled())
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("FEED_DB_PASSWORD", "s3cret")

	cfg, err := Parse([]byte("database:\n  password: ${FEED_DB_PASSWORD}\nsync:\n  enabled: false\n  max_items_per_pass: 25\n"))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.False(t, cfg.Sync.Enabled)
	assert.Equal(t, 25, cfg.Sync.MaxItemsPerPass)
	assert.Contains(t, cfg.Database.DSN(), "password=s3cret")
}

func TestParse_ZeroIntervalDisablesScheduler(t *testing.T) {
	cfg, err := Parse([]byte("sync:\n  interval: 0s\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Sync.Enabled)

	cfg, err = Parse([]byte("sync:\n  interval: 10m\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Sync.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Sync.Interval)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative ceiling", "sync:\n  max_items_per_pass: -1\n"},
		{"negative interval", "sync:\n  interval: -1m\n"},
		{"quality out of range", "image:\n  quality: 150\n"},
		{"s3 without bucket", "blob:\n  type: s3\n"},
		{"malformed", "sync: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nblob:\n  type: s3\n  s3_bucket: media\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "media", cfg.Blob.S3Bucket)
	assert.Empty(t, cfg.Blob.Root)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
