package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.Equal(t, "chatdeck-attachments", cfg.Storage.BucketAttachments)
	assert.Equal(t, 15*time.Minute, cfg.Security.JWTAccessTTL)
	assert.Equal(t, 720*time.Hour, cfg.Security.RefreshTTL)
	assert.Equal(t, 10, cfg.Security.MaxSessions)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAI.Model)
	assert.Equal(t, time.Second, cfg.OpenAI.RunPollInterval)
	assert.Equal(t, 2*time.Minute, cfg.OpenAI.RunTimeout)
	assert.True(t, cfg.Jobs.Enabled)
	assert.Equal(t, 72*time.Hour, cfg.Jobs.AttachmentRetention)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CHATDECK_ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
}
