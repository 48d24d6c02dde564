package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/exp/slog"

	"shiptrack/internal/app/server/api"
	"shiptrack/internal/app/server/config"
	"shiptrack/internal/app/server/realtime"
	"shiptrack/internal/domain/record"
	"shiptrack/internal/infrastructure/storage/memory"
	"shiptrack/internal/infrastructure/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg    *config.Config
	log    *slog.Logger
	http   *http.Server
	hub    *realtime.Hub
	closer func() error
}

// New собирает хранилище, сервис записей, ленту и HTTP API
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	var (
		repo   record.Repository
		db     interface{ Ping(context.Context) error }
		closer = func() error { return nil }
	)

	if cfg.DB.InMemory() {
		log.Warn("Хранилище в памяти, данные не переживут перезапуск")
		repo = memory.NewRecordRepository()
	} else {
		storage, err := postgres.New(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		repo = postgres.NewRecordRepository(storage.Pool(), log)
		db = storage
		closer = storage.Close
	}

	hub := realtime.NewHub(log)
	service := record.NewService(repo, hub, log, cfg.Server.MaxPageSize)

	deps := api.Deps{Records: service, Feed: hub}
	if db != nil {
		deps.DB = db
	}

	return &App{
		cfg: cfg,
		log: log,
		http: &http.Server{
			Addr:         cfg.Server.RunAddress,
			Handler:      api.New(deps, log),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		hub:    hub,
		closer: closer,
	}, nil
}

// Run обслуживает запросы до отмены ctx
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Сервер запущен", "address", a.cfg.Server.RunAddress, "env", a.cfg.Env)
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
	}

	a.log.Info("Остановка сервера...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// websocket-соединения hijacked, Shutdown их не ждет
	a.hub.Close()
	err := a.http.Shutdown(shutdownCtx)
	a.close()
	return err
}

func (a *App) close() {
	if err := a.closer(); err != nil {
		a.log.Error("Ошибка закрытия хранилища", "error", err)
	}
}
