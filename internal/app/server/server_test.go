package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"shiptrack/internal/app/server/config"
)

func memoryConfig(addr string) *config.Config {
	return &config.Config{
		Env: config.EnvLocal,
		DB:  config.DB{DatabaseURI: "memory://", MaxConns: 1},
		Server: config.Server{
			RunAddress:   addr,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			MaxPageSize:  1000,
		},
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	app, err := New(ctx, memoryConfig("127.0.0.1:0"), slog.Default())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout):
		t.Fatal("сервер не остановился")
	}
}

func TestApp_RunReportsListenError(t *testing.T) {
	app, err := New(context.Background(), memoryConfig("256.0.0.1:99999"), slog.Default())
	require.NoError(t, err)

	assert.Error(t, app.Run(context.Background()))
}
