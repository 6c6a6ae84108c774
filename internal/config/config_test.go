package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3*time.Second, cfg.PollInterval.Duration)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 15*time.Second, cfg.StaleAfter.Duration)
	assert.Equal(t, time.Hour, cfg.AttributionRetention.Duration)
	assert.Equal(t, cfg.APIURL, cfg.RealtimeURL())
}

func TestLoad_Layering(t *testing.T) {
	file := writeFile(t, "config.toml", `
api_url = "https://chat.example.com"
lang = "de"
poll_interval = "5s"
max_reconnect_attempts = 2
attribution_key = "body"
`)
	env := writeFile(t, ".env", "LIVECHAT_POLL_INTERVAL=7s\nLIVECHAT_WS_URL=wss://rt.example.com\n")
	t.Setenv("LIVECHAT_MAX_RECONNECT_ATTEMPTS", "9")

	t.Cleanup(func() {
		os.Unsetenv("LIVECHAT_POLL_INTERVAL")
		os.Unsetenv("LIVECHAT_WS_URL")
	})

	cfg, err := Load(file, env)
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", cfg.APIURL)
	assert.Equal(t, "de", cfg.Lang)
	assert.Equal(t, "body", cfg.AttributionKey)
	// .env beats the file, the process environment beats both.
	assert.Equal(t, 7*time.Second, cfg.PollInterval.Duration)
	assert.Equal(t, 9, cfg.MaxReconnectAttempts)
	assert.Equal(t, "wss://rt.example.com", cfg.RealtimeURL())
	// Untouched keys keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.StaleAfter.Duration)
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"), filepath.Join(t.TempDir(), ".env"))
	assert.Error(t, err)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"unknown lang":  `lang = "xx"`,
		"bad key mode":  `attribution_key = "hash"`,
		"bad duration":  `stale_after = "soon"`,
		"zero poll":     `poll_interval = "0s"`,
		"no reconnects": `max_reconnect_attempts = 0`,
		"empty api url": `api_url = ""`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.toml", body), filepath.Join(t.TempDir(), ".env"))
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("LIVECHAT_STALE_AFTER", "fifteen")
	_, err := Load(writeFile(t, "config.toml", ""), filepath.Join(t.TempDir(), ".env"))
	assert.ErrorContains(t, err, "LIVECHAT_STALE_AFTER")
}
