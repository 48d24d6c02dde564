package health

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

const pingTimeout = 2 * time.Second

// Pinger проверяет доступность базы
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClientCounter сообщает число подписчиков realtime
type ClientCounter interface {
	Clients() int
}

type Handler struct {
	log        *slog.Logger
	db         Pinger
	feed       ClientCounter
	middleware huma.Middlewares
}

func NewHandler(log *slog.Logger, db Pinger, feed ClientCounter, middleware huma.Middlewares) *Handler {
	return &Handler{
		log:        log,
		db:         db,
		feed:       feed,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.healthCheckOp(), h.healthCheck)
}

func (h *Handler) healthCheck(ctx context.Context, _ *Input) (*Output, error) {
	h.log.Debug("health check request received")

	resp := Response{Status: "OK"}
	if h.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		if err := h.db.Ping(pingCtx); err != nil {
			h.log.Warn("database ping failed", "error", err)
			return nil, huma.Error503ServiceUnavailable("database unavailable")
		}
		resp.Database = "OK"
	}
	if h.feed != nil {
		resp.Clients = h.feed.Clients()
	}

	return &Output{Body: resp}, nil
}
