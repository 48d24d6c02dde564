package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.ServerAddress)
	assert.Equal(t, filepath.Join(dir, "cache.db"), cfg.DataPath)
	assert.Equal(t, 30*time.Second, cfg.SyncCooldown)
	assert.Equal(t, 20*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 1000, cfg.PageSize)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.True(t, cfg.RealtimeEnabled)
	assert.True(t, cfg.IsLocal())
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("APP_ENV", "prod")
	t.Setenv("SERVER_ADDRESS", "api.example.com")
	t.Setenv("ENABLE_TLS", "true")
	t.Setenv("COMPANY_ID", "acme")
	t.Setenv("PAGE_SIZE", "250")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, "https://api.example.com", cfg.BaseURL())
	assert.Equal(t, "acme", cfg.CompanyID)
	assert.Equal(t, 250, cfg.PageSize)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "page size", key: "PAGE_SIZE", val: "0"},
		{name: "attempts", key: "MAX_ATTEMPTS", val: "-1"},
		{name: "retry bounds", key: "RETRY_MAX_SECONDS", val: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_DIR", t.TempDir())
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
			assert.Panics(t, func() { MustLoad() })
		})
	}
}
