package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "store/store.json", cfg.StorePath)
	assert.Equal(t, "wss://eventsub.wss.twitch.tv/ws", cfg.EventSubURL)
	assert.Equal(t, "https://api.twitch.tv/helix", cfg.HelixURL)
	assert.Equal(t, 50, cfg.MaxObservers)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SESSION_SECRET", "secret")
	t.Setenv("PORT", "9090")
	t.Setenv("EVENTSUB_URL", "ws://localhost:4000/ws")
	t.Setenv("MAX_OBSERVERS", "3")
	t.Setenv("SHUTDOWN_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "ws://localhost:4000/ws", cfg.EventSubURL)
	assert.Equal(t, 3, cfg.MaxObservers)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_RequiresSessionSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "SESSION_SECRET")
}

func TestLoad_ValidatesEncryptionKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"unset is fine", "", false},
		{"valid 64 hex chars", "6368616e676520746869732070617373776f726420746f206120736563726574", false},
		{"not hex", "not-a-hex-key", true},
		{"wrong length", "deadbeef", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SESSION_SECRET", "secret")
			t.Setenv("TOKEN_ENCRYPTION_KEY", tt.key)

			_, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
