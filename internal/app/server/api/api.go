// GET    /api/v1/health                     # состояние сервиса и базы
// GET    /api/v1/entities/{type}?from=&to=  # страница записей в порядке вставки
// POST   /api/v1/entities/{type}            # создать запись (Idempotency-Key)
// PATCH  /api/v1/entities/{type}/{id}       # частичное обновление
// DELETE /api/v1/entities/{type}/{id}       # удаление, идемпотентно
// GET    /api/v1/realtime                   # websocket лента изменений

package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"

	entityAPI "shiptrack/internal/app/server/api/http/entity"
	healthAPI "shiptrack/internal/app/server/api/http/health"
	"shiptrack/internal/app/server/api/http/middleware/logger"
	"shiptrack/internal/domain/record"
)

const RealtimePath = "/api/v1/realtime"

// Feed websocket-лента, которую раздает сервер
type Feed interface {
	http.Handler
	healthAPI.ClientCounter
}

type Deps struct {
	Records record.Servicer
	DB      healthAPI.Pinger
	Feed    Feed
}

type Handlers struct {
	Health *healthAPI.Handler
	Entity *entityAPI.Handler
}

// New создает *chi.Mux со всеми операциями через huma.Register
func New(deps Deps, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()
	mux.Use(middleware.Recoverer)

	config := huma.DefaultConfig("Shiptrack API", "1.0.0")
	API := humachi.New(mux, config)

	h := handlers(deps, log)
	h.Health.SetupRoutes(API)
	h.Entity.SetupRoutes(API)

	if deps.Feed != nil {
		mux.Handle(RealtimePath, deps.Feed)
	}

	return mux
}

func handlers(deps Deps, log *slog.Logger) *Handlers {
	loggerMW := logger.New(log)
	mws := huma.Middlewares{loggerMW.Middleware()}

	var feed healthAPI.ClientCounter
	if deps.Feed != nil {
		feed = deps.Feed
	}

	return &Handlers{
		Health: healthAPI.NewHandler(log, deps.DB, feed, mws),
		Entity: entityAPI.NewHandler(deps.Records, log, mws),
	}
}
