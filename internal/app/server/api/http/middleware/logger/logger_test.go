package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

type pingOutput struct {
	Body struct {
		OK bool `json:"ok"`
	}
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	mw := New(log).Middleware()

	_, api := humatest.New(t)
	huma.Register(api, huma.Operation{
		OperationID: "ping",
		Method:      http.MethodGet,
		Path:        "/ping",
		Middlewares: huma.Middlewares{mw},
	}, func(ctx context.Context, _ *struct{}) (*pingOutput, error) {
		out := &pingOutput{}
		out.Body.OK = true
		return out, nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "broken",
		Method:      http.MethodPost,
		Path:        "/broken",
		Middlewares: huma.Middlewares{mw},
	}, func(ctx context.Context, _ *struct{}) (*pingOutput, error) {
		return nil, huma.Error500InternalServerError("boom")
	})

	api.Get("/ping")
	api.Post("/broken", "Idempotency-Key: k-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Equal(t, "INFO", first["level"])
	assert.Equal(t, "ping", first["operation"])
	assert.EqualValues(t, http.StatusOK, first["status"])
	assert.Equal(t, "http", first["component"])

	assert.Equal(t, "ERROR", second["level"])
	assert.EqualValues(t, http.StatusInternalServerError, second["status"])
	assert.Equal(t, "k-1", second["idempotency_key"])
}
