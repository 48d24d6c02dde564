package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/slog"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type clients int

func (c clients) Clients() int { return int(c) }

func TestHandler_healthCheck(t *testing.T) {
	tests := []struct {
		name           string
		db             Pinger
		expectedStatus string
		expectedDB     string
		expectErr      bool
	}{
		{
			name:           "health check returns OK",
			expectedStatus: "OK",
		},
		{
			name:           "database reachable",
			db:             pingerFunc(func(context.Context) error { return nil }),
			expectedStatus: "OK",
			expectedDB:     "OK",
		},
		{
			name:      "database down",
			db:        pingerFunc(func(context.Context) error { return errors.New("refused") }),
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			handler := NewHandler(slog.Default(), tt.db, clients(3), huma.Middlewares{})

			// Act
			output, err := handler.healthCheck(context.Background(), &Input{})

			// Assert
			if tt.expectErr {
				assert.Error(t, err)
				assert.Nil(t, output)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, output.Body.Status)
			assert.Equal(t, tt.expectedDB, output.Body.Database)
			assert.Equal(t, 3, output.Body.Clients)
		})
	}
}

func TestHandler_Route(t *testing.T) {
	_, api := humatest.New(t)
	NewHandler(slog.Default(), nil, nil, nil).SetupRoutes(api)

	resp := api.Get("/api/v1/health")
	assert.Equal(t, http.StatusOK, resp.Code)

	var body Response
	assert.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "OK", body.Status)
	assert.Empty(t, body.Database)
}

func TestHandler_Route_DatabaseDown(t *testing.T) {
	_, api := humatest.New(t)
	db := pingerFunc(func(context.Context) error { return errors.New("refused") })
	NewHandler(slog.Default(), db, nil, nil).SetupRoutes(api)

	resp := api.Get("/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
