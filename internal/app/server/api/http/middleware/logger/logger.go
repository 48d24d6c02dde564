package logger

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// Logger пишет строку лога на каждую операцию API
type Logger struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Logger {
	return &Logger{
		log: log.With(slog.String("component", "http")),
	}
}

// Middleware уровень записи зависит от статуса: 5xx error, 4xx warn, иначе info
func (l *Logger) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		method := ctx.Method()
		path := ctx.URL().Path

		next(ctx)

		status := ctx.Status()
		attrs := []any{
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", ctx.RemoteAddr()),
		}
		if op := ctx.Operation(); op != nil {
			attrs = append(attrs, slog.String("operation", op.OperationID))
		}
		if key := ctx.Header("Idempotency-Key"); key != "" {
			attrs = append(attrs, slog.String("idempotency_key", key))
		}

		switch {
		case status >= 500:
			l.log.Error("HTTP request", attrs...)
		case status >= 400:
			l.log.Warn("HTTP request", attrs...)
		default:
			l.log.Info("HTTP request", attrs...)
		}
	}
}
