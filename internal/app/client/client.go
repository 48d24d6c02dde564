package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	gosync "sync"
	"syscall"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"

	"shiptrack/internal/app/client/config"
	"shiptrack/internal/app/client/connectivity"
	"shiptrack/internal/app/client/gateway"
	"shiptrack/internal/app/client/realtime"
	"shiptrack/internal/app/client/state"
	"shiptrack/internal/app/client/storage"
	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/mutation"
	"shiptrack/internal/domain/sync"
)

// Monitor источник состояния связи для App
type Monitor interface {
	Connectivity
	Start(ctx context.Context) bool
	Run(ctx context.Context)
	Subscribe() (<-chan connectivity.Transition, func())
}

// Feed лента изменений с сервера
type Feed interface {
	Run(ctx context.Context, online func() bool, handle func(realtime.Event))
}

type App struct {
	config  *config.Config
	log     *slog.Logger
	storage storage.Storage
	monitor Monitor
	feed    Feed
	state   *state.Container
	engine  *Engine
	writer  *Writer
	limiter *rate.Limiter
	wg      gosync.WaitGroup
	cancel  context.CancelFunc
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	var store storage.Storage
	sqliteStorage, err := storage.NewSQLiteStorage(cfg.DataPath)
	if err != nil {
		log.Warn("Не удалось открыть SQLite, используем память", "error", err)
		store = storage.NewMemoryStorage()
	} else {
		store = sqliteStorage
	}

	gw := gateway.New(gateway.Config{
		BaseURL:      cfg.BaseURL(),
		PageSize:     cfg.PageSize,
		FetchTimeout: cfg.FetchTimeout,
	}, log)

	monitor := connectivity.NewMonitor(
		connectivity.DialProber{Address: cfg.ProbeAddress},
		cfg.ProbeInterval,
		log,
	)

	var feed Feed
	if cfg.RealtimeEnabled {
		feedURL, err := realtime.FeedURL(cfg.BaseURL())
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("ошибка адреса ленты изменений: %w", err)
		}
		feed = realtime.NewSubscriber(feedURL, time.Second, time.Minute, log)
	}

	return assemble(cfg, log, store, gw, monitor, feed), nil
}

func assemble(cfg *config.Config, log *slog.Logger, store storage.Storage, gw Gateway, monitor Monitor, feed Feed) *App {
	st := state.New()
	engine := NewEngine(EngineConfig{
		Filter:      gateway.Filter{CompanyID: cfg.CompanyID},
		UserID:      cfg.UserID,
		MaxAttempts: cfg.MaxAttempts,
		RetryBase:   cfg.RetryBase,
		RetryMax:    cfg.RetryMax,
	}, store, gw, monitor, st, log)

	cooldown := cfg.SyncCooldown
	if cooldown <= 0 {
		cooldown = time.Nanosecond
	}

	return &App{
		config:  cfg,
		log:     log,
		storage: store,
		monitor: monitor,
		feed:    feed,
		state:   st,
		engine:  engine,
		writer:  NewWriter(engine, cfg.UserID, log),
		limiter: rate.NewLimiter(rate.Every(cooldown), 1),
	}
}

// Start проверяет связь и выполняет первичную загрузку
func (a *App) Start(ctx context.Context) (*sync.Result, error) {
	a.CheckConnection(ctx)

	res, err := a.engine.Start(ctx)
	if err != nil {
		return res, err
	}
	if res != nil && res.FromCache {
		a.log.Info("Работа в офлайн-режиме", "pending", res.Pending)
	}
	return res, nil
}

// Run запускает фоновую синхронизацию до сигнала завершения или отмены ctx
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	defer cancel()

	go a.handleSignals(ctx)

	if _, err := a.Start(ctx); err != nil && !errors.Is(err, sync.ErrNoCachedData) {
		return err
	}

	transitions, unsubscribe := a.monitor.Subscribe()
	defer unsubscribe()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.monitor.Run(ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.watchConnectivity(ctx, transitions)
	}()

	if a.config.SyncInterval > 0 {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.startSync(ctx)
		}()
	}

	if a.feed != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.feed.Run(ctx, a.monitor.IsOnline, func(ev realtime.Event) {
				a.log.Debug("Изменение на сервере", "entity_type", ev.EntityType, "id", ev.ID, "op", ev.Op)
				a.trigger(ctx, "realtime", true)
			})
		}()
	}

	a.log.Info("Клиент запущен",
		"server", a.config.ServerAddress,
		"env", a.config.Env,
		"online", a.monitor.IsOnline(),
	)

	<-ctx.Done()
	a.wg.Wait()
	a.log.Info("Клиент завершил работу")
	return nil
}

func (a *App) watchConnectivity(ctx context.Context, transitions <-chan connectivity.Transition) {
	for {
		select {
		case <-ctx.Done():
			return
		case tr := <-transitions:
			a.state.Dispatch(state.SetConnectivity{Online: tr.Online})
			if !tr.Online {
				continue
			}

			if pending, err := a.engine.RefreshPending(ctx); err == nil && pending > 0 {
				a.log.Info("Связь восстановлена, есть неотправленные изменения", "pending", pending)
			}
			a.trigger(ctx, "reconnect", false)
		}
	}
}

func (a *App) startSync(ctx context.Context) {
	ticker := time.NewTicker(a.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("Синхронизация остановлена")
			return
		case <-ticker.C:
			if a.monitor.IsOnline() {
				a.trigger(ctx, "interval", true)
			}
		}
	}
}

// trigger запускает сверку в фоне. Автоматические триггеры ограничены cooldown.
func (a *App) trigger(ctx context.Context, reason string, limited bool) {
	if limited && !a.limiter.Allow() {
		a.log.Debug("Сверка пропущена: cooldown", "reason", reason)
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		res, err := a.engine.Reconcile(ctx)
		switch {
		case errors.Is(err, sync.ErrPassCoalesced):
			a.log.Debug("Сверка уже идет, повтор запланирован", "reason", reason)
		case err != nil && !sync.IsCancelled(err):
			a.log.Error("Ошибка синхронизации", "reason", reason, "error", err)
		case err == nil && !res.Success():
			a.log.Warn("Сверка завершена с ошибками",
				"reason", reason,
				"failed_types", len(res.FailedTypes),
				"replay_errors", len(res.ReplayErrors))
		}
	}()
}

// CheckConnection проверяет связь один раз и обновляет состояние
func (a *App) CheckConnection(ctx context.Context) bool {
	online := a.monitor.Start(ctx)
	a.state.Dispatch(state.SetConnectivity{Online: online})
	return online
}

// Sync явная сверка, без cooldown
func (a *App) Sync(ctx context.Context) (*sync.Result, error) {
	a.CheckConnection(ctx)
	return a.engine.Reconcile(ctx)
}

func (a *App) Status() sync.Status {
	return a.engine.Status()
}

func (a *App) SubscribeStatus() (<-chan sync.Status, func()) {
	return a.engine.Subscribe()
}

func (a *App) SubscribeState() (<-chan uint64, func()) {
	return a.state.Subscribe()
}

func (a *App) Snapshot() state.State {
	return a.state.Snapshot()
}

// List возвращает коллекцию из состояния приложения
func (a *App) List(t entity.Type) []entity.Record {
	return a.state.Collection(t)
}

func (a *App) Create(ctx context.Context, t entity.Type, rec entity.Record) (entity.Record, error) {
	return a.writer.Create(ctx, t, rec)
}

func (a *App) Update(ctx context.Context, t entity.Type, id string, patch entity.Record) (entity.Record, error) {
	return a.writer.Update(ctx, t, id, patch)
}

func (a *App) Delete(ctx context.Context, t entity.Type, id string) error {
	return a.writer.Delete(ctx, t, id)
}

// PendingMutations очередь в порядке отправки
func (a *App) PendingMutations(ctx context.Context) ([]mutation.Mutation, error) {
	return a.storage.Mutations(ctx)
}

// FailedMutations мутации, исчерпавшие попытки
func (a *App) FailedMutations(ctx context.Context) ([]mutation.Mutation, error) {
	return a.storage.Failed(ctx)
}

// Retry возвращает мутацию из failed в очередь
func (a *App) Retry(ctx context.Context, seq int64) error {
	if err := a.storage.Requeue(ctx, seq); err != nil {
		return err
	}
	_, err := a.engine.RefreshPending(ctx)
	return err
}

// Discard удаляет мутацию; локальная версия записи заменится серверной при следующей сверке
func (a *App) Discard(ctx context.Context, seq int64) error {
	if err := a.storage.Remove(ctx, seq); err != nil {
		return err
	}
	_, err := a.engine.RefreshPending(ctx)
	return err
}

func (a *App) handleSignals(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
	case sig := <-sigChan:
		a.log.Info("Получен сигнал завершения", "signal", sig.String())
		if a.cancel != nil {
			a.cancel()
		}
	}
}

// Shutdown останавливает фоновые задачи и закрывает хранилище
func (a *App) Shutdown() {
	a.log.Info("Завершение работы клиента...")

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if err := a.storage.Close(); err != nil {
		a.log.Error("Ошибка закрытия хранилища", "error", err)
	}
}
