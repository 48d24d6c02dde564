package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URI", "postgres://localhost:5432/shiptrack")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvLocal, cfg.Env)
	assert.Equal(t, ":8080", cfg.Server.RunAddress)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 1000, cfg.Server.MaxPageSize)
	assert.EqualValues(t, 10, cfg.DB.MaxConns)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URI", "postgres://db/shiptrack")
	t.Setenv("APP_ENV", EnvProd)
	t.Setenv("RUN_ADDRESS", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_PAGE_SIZE", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProd, cfg.Env)
	assert.Equal(t, ":9090", cfg.Server.RunAddress)
	assert.Equal(t, "debug", cfg.Logger.LogLevel)
	assert.Equal(t, 500, cfg.Server.MaxPageSize)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing database", env: map[string]string{"DATABASE_URI": ""}},
		{name: "bad page size", env: map[string]string{"DATABASE_URI": "postgres://db", "MAX_PAGE_SIZE": "0"}},
		{name: "bad pool size", env: map[string]string{"DATABASE_URI": "postgres://db", "DB_MAX_CONNS": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
			assert.Panics(t, func() { MustLoad() })
		})
	}
}

func TestDB_InMemory(t *testing.T) {
	assert.True(t, DB{DatabaseURI: "memory://"}.InMemory())
	assert.False(t, DB{DatabaseURI: "postgres://localhost/shiptrack"}.InMemory())
}
