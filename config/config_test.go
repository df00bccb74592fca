package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "policies.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "gemini-1.5-flash", cfg.GeminiModel)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Hour, cfg.ScanInterval)
	assert.True(t, cfg.RunOnStartup)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 5*time.Second, cfg.StartupDelay)
	assert.Equal(t, 5*time.Minute, cfg.FailureCooldown)
	assert.Equal(t, 2*time.Second, cfg.BackoffBase)
	assert.Equal(t, 50, cfg.RetryLimit)
	assert.NotEmpty(t, cfg.FeedURLs)
	assert.NotEmpty(t, cfg.PageURLs)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(portEnv, "9090")
	t.Setenv(dbPathEnv, "/tmp/pe.db")
	t.Setenv(scanIntervalEnv, "120")
	t.Setenv(runOnStartupEnv, "false")
	t.Setenv(enabledEnv, "0")
	t.Setenv(geminiKeyEnv, "test-key")
	t.Setenv(backoffBaseEnv, "4")
	t.Setenv(feedURLsEnv, "https://a.example/rss, https://b.example/rss,")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/pe.db", cfg.DBPath)
	assert.Equal(t, 2*time.Minute, cfg.ScanInterval)
	assert.False(t, cfg.RunOnStartup)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "test-key", cfg.GeminiAPIKey)
	assert.Equal(t, 4*time.Second, cfg.BackoffBase)
	assert.Equal(t, []string{"https://a.example/rss", "https://b.example/rss"}, cfg.FeedURLs)
}

func TestEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv(portEnv, "not-a-number")
	t.Setenv(scanIntervalEnv, "-5")
	t.Setenv(runOnStartupEnv, "maybe")

	cfg := Load()

	// Unparseable values fall back to defaults instead of breaking startup.
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, time.Hour, cfg.ScanInterval)
	assert.True(t, cfg.RunOnStartup)
}
