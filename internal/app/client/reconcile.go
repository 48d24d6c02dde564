package client

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"shiptrack/internal/app/client/gateway"
	"shiptrack/internal/app/client/state"
	"shiptrack/internal/app/client/storage"
	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/mutation"
	"shiptrack/internal/domain/sync"
)

// Gateway удаленный источник данных
type Gateway interface {
	FetchAll(ctx context.Context, t entity.Type, f gateway.Filter) ([]entity.Record, error)
	Insert(ctx context.Context, t entity.Type, rec entity.Record, key string) (entity.Record, error)
	Update(ctx context.Context, t entity.Type, id string, patch entity.Record, key string) (entity.Record, error)
	Delete(ctx context.Context, t entity.Type, id string, key string) error
}

// Connectivity источник флага онлайн/офлайн
type Connectivity interface {
	IsOnline() bool
}

type EngineConfig struct {
	Types  []entity.Type
	Filter gateway.Filter
	// UserID активного пользователя; чужие мутации не сливаются и не отправляются
	UserID           string
	MaxAttempts      int
	RetryBase        time.Duration
	RetryMax         time.Duration
	FetchConcurrency int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if len(c.Types) == 0 {
		c.Types = entity.All()
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 5 * time.Second
	}
	if c.RetryMax < c.RetryBase {
		c.RetryMax = c.RetryBase
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = len(c.Types)
	}
	return c
}

// Engine единственный компонент, решающий, как выглядит состояние
// приложения: кэш, сервер и очередь мутаций сводятся здесь.
type Engine struct {
	cfg   EngineConfig
	store storage.Storage
	gw    Gateway
	conn  Connectivity
	state *state.Container
	log   *slog.Logger
	now   func() time.Time

	// commitMu сериализует записи в кэш и состояние между движком и Writer
	commitMu gosync.Mutex

	mu      gosync.Mutex
	running bool
	rerun   bool
	journal map[entity.Type][]confirmedWrite
	status  sync.Status
	subs    map[int]chan sync.Status
	nextSub int
}

func NewEngine(cfg EngineConfig, store storage.Storage, gw Gateway, conn Connectivity, st *state.Container, log *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg.withDefaults(),
		store:  store,
		gw:     gw,
		conn:   conn,
		state:  st,
		log:    log.With("component", "reconcile"),
		now:    time.Now,
		status: sync.Status{Phase: sync.PhaseIdle},
		subs:   make(map[int]chan sync.Status),
	}
}

// Start первичная загрузка: офлайн читает только кэш, онлайн делает полный проход
func (e *Engine) Start(ctx context.Context) (*sync.Result, error) {
	return e.Reconcile(ctx)
}

// Reconcile запускает проход сверки. Если проход уже идет, возвращает
// ErrPassCoalesced и планирует ровно один повтор; результат повтора
// получает вызвавший первый проход.
func (e *Engine) Reconcile(ctx context.Context) (*sync.Result, error) {
	e.mu.Lock()
	if e.running {
		e.rerun = true
		e.status.RerunScheduled = true
		status := e.status
		e.mu.Unlock()
		e.publish(status)
		return nil, sync.ErrPassCoalesced
	}
	e.running = true
	e.mu.Unlock()

	for {
		e.mu.Lock()
		e.journal = make(map[entity.Type][]confirmedWrite)
		e.mu.Unlock()

		res, err := e.pass(ctx)

		e.mu.Lock()
		if e.rerun && ctx.Err() == nil {
			e.rerun = false
			e.status.RerunScheduled = false
			e.mu.Unlock()
			e.log.Debug("Повторный проход после слияния триггеров")
			continue
		}
		e.running = false
		e.rerun = false
		e.journal = nil
		e.status.RerunScheduled = false
		e.mu.Unlock()

		return res, err
	}
}

// Status текущее состояние движка
func (e *Engine) Status() sync.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.status
	s.FailedTypes = append([]entity.Type(nil), e.status.FailedTypes...)
	return s
}

// Subscribe канал с последним статусом после каждого изменения
func (e *Engine) Subscribe() (<-chan sync.Status, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan sync.Status, 1)
	e.subs[id] = ch

	var once gosync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// RefreshPending пересчитывает число ожидающих мутаций
func (e *Engine) RefreshPending(ctx context.Context) (int, error) {
	n, err := e.store.CountPending(ctx)
	if err != nil {
		return 0, err
	}
	e.update(func(s *sync.Status) { s.Pending = n })
	return n, nil
}

func (e *Engine) pass(ctx context.Context) (*sync.Result, error) {
	res := &sync.Result{
		Fetched:   make(map[entity.Type]int),
		Merged:    make(map[entity.Type]int),
		StartTime: e.now(),
	}
	defer func() {
		res.EndTime = e.now()
		res.Duration = res.EndTime.Sub(res.StartTime)
	}()

	e.state.Dispatch(state.SetSyncing{Syncing: true})
	defer e.state.Dispatch(state.SetSyncing{Syncing: false})

	if !e.conn.IsOnline() {
		return res, e.loadFromCache(ctx, res, nil)
	}

	e.setPhase(sync.PhaseFetchingRemote, res.StartTime)
	fetched, failed := e.fetchAll(ctx)
	if ctx.Err() != nil {
		return res, e.cancelled(ctx)
	}

	res.FailedTypes = failed
	for t, records := range fetched {
		res.Fetched[t] = len(records)
	}

	if len(fetched) == 0 && allRetryable(failed) {
		e.log.Warn("Сервер недоступен, используем кэш", "failed_types", len(failed))
		return res, e.loadFromCache(ctx, res, failed)
	}

	if err := e.merge(ctx, res, fetched); err != nil {
		return res, err
	}

	if err := e.drain(ctx, res); err != nil {
		return res, err
	}

	pending, err := e.store.CountPending(ctx)
	if err != nil {
		return res, e.fail(err)
	}
	res.Pending = pending

	finished := e.now()
	e.update(func(s *sync.Status) {
		s.Phase = sync.PhaseIdle
		s.LastSuccessAt = finished
		s.LastError = ""
		s.FailedTypes = typesOf(failed)
		s.Pending = pending
	})

	e.log.Info("Сверка завершена",
		"fetched_types", len(fetched),
		"failed_types", len(failed),
		"conflicts", len(res.Conflicts),
		"replayed", res.Replayed,
		"deferred", res.Deferred,
		"pending", pending,
		"duration", e.now().Sub(res.StartTime),
	)
	return res, nil
}

// fetchAll загружает все типы параллельно; ошибка одного типа не отменяет остальные
func (e *Engine) fetchAll(ctx context.Context) (map[entity.Type][]entity.Record, []sync.TypeError) {
	var (
		mu      gosync.Mutex
		fetched = make(map[entity.Type][]entity.Record, len(e.cfg.Types))
		failed  []sync.TypeError
	)

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.FetchConcurrency)

	for _, t := range e.cfg.Types {
		g.Go(func() error {
			records, err := e.gw.FetchAll(ctx, t, e.cfg.Filter)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !sync.IsCancelled(err) {
					e.log.Warn("Ошибка загрузки коллекции", "entity_type", t, "error", err)
				}
				failed = append(failed, sync.TypeError{EntityType: t, Err: err, Message: err.Error()})
				return nil
			}
			fetched[t] = records
			return nil
		})
	}
	_ = g.Wait()

	// порядок ошибок не зависит от порядка завершения горутин
	ordered := make([]sync.TypeError, 0, len(failed))
	for _, t := range e.cfg.Types {
		for _, f := range failed {
			if f.EntityType == t {
				ordered = append(ordered, f)
			}
		}
	}
	return fetched, ordered
}

func (e *Engine) merge(ctx context.Context, res *sync.Result, fetched map[entity.Type][]entity.Record) error {
	e.setPhase(sync.PhaseMerging, time.Time{})

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	if ctx.Err() != nil {
		return e.cancelled(ctx)
	}

	all, err := e.store.Mutations(ctx)
	if err != nil {
		return e.fail(err)
	}
	pending := e.ownMutations(all)

	e.mu.Lock()
	journal := e.journal
	e.journal = make(map[entity.Type][]confirmedWrite)
	e.mu.Unlock()

	sets := make(map[entity.Type][]entity.Record, len(fetched))
	for t, remote := range fetched {
		merged, conflicts, dropped := mergeCollection(t, remote, journal[t], pending)
		if dropped > 0 {
			e.log.Warn("Пропущены записи без id или с повтором id", "entity_type", t, "count", dropped)
		}
		for _, c := range conflicts {
			e.log.Warn("Конфликт слияния, сохраняется серверная версия",
				"entity_type", c.EntityType, "id", c.RecordID, "mutation_id", c.MutationID)
		}
		res.Conflicts = append(res.Conflicts, conflicts...)
		res.Merged[t] = len(merged)
		sets[t] = merged
	}

	// упавшие типы показываются из кэша
	actions := make([]state.Action, 0, len(e.cfg.Types))
	for _, f := range res.FailedTypes {
		cached, err := e.store.GetAll(ctx, f.EntityType)
		if err != nil {
			return e.fail(err)
		}
		actions = append(actions, state.ReplaceCollection{EntityType: f.EntityType, Records: cached})
	}

	if ctx.Err() != nil {
		return e.cancelled(ctx)
	}
	if err := e.store.ReplaceAll(ctx, sets); err != nil {
		if ctx.Err() != nil {
			return e.cancelled(ctx)
		}
		return e.fail(err)
	}

	for _, t := range e.cfg.Types {
		if records, ok := sets[t]; ok {
			actions = append(actions, state.ReplaceCollection{EntityType: t, Records: records})
		}
	}
	e.state.Dispatch(actions...)
	return nil
}

// drain отправляет очередь на сервер в порядке FIFO
func (e *Engine) drain(ctx context.Context, res *sync.Result) error {
	e.setPhase(sync.PhaseSyncing, time.Time{})

	all, err := e.store.Mutations(ctx)
	if err != nil {
		return e.fail(err)
	}
	queue := e.ownMutations(all)
	blocked := make(map[string]bool)

	for i, m := range queue {
		if ctx.Err() != nil {
			return e.cancelled(ctx)
		}
		if !e.conn.IsOnline() {
			res.Deferred += len(queue) - i
			e.log.Info("Связь потеряна, отправка очереди прервана", "left", len(queue)-i)
			return nil
		}

		key := m.Key()
		if blocked[key] {
			res.Deferred++
			continue
		}
		if !m.Ready(e.now()) {
			blocked[key] = true
			res.Deferred++
			continue
		}

		confirmed, err := e.replay(ctx, m)
		if err == nil {
			if err := e.confirm(ctx, m, confirmed); err != nil {
				return err
			}
			res.Replayed++
			continue
		}

		if sync.IsCancelled(err) || ctx.Err() != nil {
			return e.cancelled(ctx)
		}

		if sync.IsRetryable(err) {
			res.ReplayErrors = append(res.ReplayErrors, replayError(m, err, false))
			res.Deferred += len(queue) - i
			e.log.Warn("Сеть недоступна, очередь сохранена", "error", err, "left", len(queue)-i)
			return nil
		}

		var remoteErr *sync.RemoteFetchError
		if !errors.As(err, &remoteErr) {
			return e.fail(err)
		}

		blocked[key] = true
		deadLetter, markErr := e.markFailure(ctx, m, remoteErr)
		if markErr != nil {
			return e.fail(markErr)
		}
		res.ReplayErrors = append(res.ReplayErrors, replayError(m, err, deadLetter))
	}
	return nil
}

func (e *Engine) replay(ctx context.Context, m mutation.Mutation) (entity.Record, error) {
	switch m.Kind {
	case mutation.Create:
		return e.gw.Insert(ctx, m.EntityType, withID(m.EntityType, m.Payload, m.RecordID).WithPending(false), m.ID)
	case mutation.Update:
		return e.gw.Update(ctx, m.EntityType, m.RecordID, m.Payload.WithPending(false), m.ID)
	case mutation.Delete:
		err := e.gw.Delete(ctx, m.EntityType, m.RecordID, m.ID)
		var remoteErr *sync.RemoteFetchError
		if errors.As(err, &remoteErr) && remoteErr.NotFound() {
			return nil, nil
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: %q", mutation.ErrInvalidKind, m.Kind)
}

// confirm удаляет подтвержденную мутацию и применяет ответ сервера.
// Очередь перечитывается под commitMu: офлайн-запись, сделанная во время
// отправки, тоже накладывается на ответ сервера.
func (e *Engine) confirm(ctx context.Context, m mutation.Mutation, confirmed entity.Record) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	if ctx.Err() != nil {
		return e.cancelled(ctx)
	}
	if err := e.store.Remove(ctx, m.Seq); err != nil {
		return e.fail(err)
	}

	if m.Kind == mutation.Delete {
		if err := e.store.Delete(ctx, m.EntityType, m.RecordID); err != nil {
			return e.fail(err)
		}
		e.state.Dispatch(state.RemoveRecord{EntityType: m.EntityType, ID: m.RecordID})
		return nil
	}

	if _, ok := entity.IDOf(m.EntityType, confirmed); !ok {
		cached, err := e.cachedRecord(ctx, m)
		if err != nil {
			return e.fail(err)
		}
		if cached == nil {
			return nil
		}
		confirmed = cached
	}

	all, err := e.store.Mutations(ctx)
	if err != nil {
		return e.fail(err)
	}
	var later []mutation.Mutation
	for _, next := range e.ownMutations(all) {
		if next.Key() == m.Key() {
			later = append(later, next)
		}
	}
	rec := overlayPending(confirmed, later)
	if rec == nil {
		return nil
	}

	if err := e.store.Put(ctx, m.EntityType, rec); err != nil {
		return e.fail(err)
	}
	e.state.Dispatch(state.UpsertRecord{EntityType: m.EntityType, Record: rec})
	return nil
}

// cachedRecord ищет запись мутации в кэше; nil без ошибки, если записи нет
func (e *Engine) cachedRecord(ctx context.Context, m mutation.Mutation) (entity.Record, error) {
	records, err := e.store.GetAll(ctx, m.EntityType)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if id, ok := entity.IDOf(m.EntityType, rec); ok && id == m.RecordID {
			return rec, nil
		}
	}
	return nil, nil
}

// markFailure откладывает мутацию с экспоненциальной задержкой или
// переводит ее в failed после MaxAttempts
func (e *Engine) markFailure(ctx context.Context, m mutation.Mutation, remoteErr *sync.RemoteFetchError) (bool, error) {
	attempts := m.Attempts + 1
	if attempts >= e.cfg.MaxAttempts || (m.Kind == mutation.Update && remoteErr.NotFound()) {
		e.log.Error("Мутация не может быть применена",
			"mutation_id", m.ID, "entity_type", m.EntityType, "id", m.RecordID,
			"attempts", attempts, "error", remoteErr)
		return true, e.store.MarkFailed(ctx, m.Seq, remoteErr.Error())
	}

	next := e.now().Add(mutation.Backoff(m.Attempts, e.cfg.RetryBase, e.cfg.RetryMax))
	e.log.Warn("Ошибка отправки мутации, повтор позже",
		"mutation_id", m.ID, "entity_type", m.EntityType, "id", m.RecordID,
		"attempts", attempts, "next_attempt_at", next, "error", remoteErr)
	return false, e.store.MarkAttempt(ctx, m.Seq, remoteErr.Error(), next)
}

// loadFromCache заполняет состояние из локального хранилища без обращения к сети
func (e *Engine) loadFromCache(ctx context.Context, res *sync.Result, failed []sync.TypeError) error {
	e.setPhase(sync.PhaseLoadingFromCache, res.StartTime)
	res.FromCache = true

	actions := make([]state.Action, 0, len(e.cfg.Types))
	found := false
	for _, t := range e.cfg.Types {
		records, err := e.store.GetAll(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return e.cancelled(ctx)
			}
			return e.fail(err)
		}
		if len(records) > 0 {
			found = true
		}
		actions = append(actions, state.ReplaceCollection{EntityType: t, Records: records})
	}

	if !found {
		err := sync.ErrNoCachedData
		if len(failed) > 0 {
			err = fmt.Errorf("%w: %w", sync.ErrNoCachedData, failed[0].Err)
		}
		return e.fail(err)
	}

	e.commitMu.Lock()
	if ctx.Err() != nil {
		e.commitMu.Unlock()
		return e.cancelled(ctx)
	}
	e.state.Dispatch(actions...)
	e.commitMu.Unlock()

	pending, err := e.store.CountPending(ctx)
	if err != nil {
		return e.fail(err)
	}
	res.Pending = pending

	e.update(func(s *sync.Status) {
		s.Phase = sync.PhaseIdle
		s.FailedTypes = typesOf(failed)
		s.Pending = pending
		s.LastError = ""
		if len(failed) > 0 {
			s.LastError = failed[0].Message
		}
	})
	e.log.Info("Состояние загружено из кэша", "pending", pending)
	return nil
}

// noteConfirmed запоминает запись, подтвержденную сервером во время прохода,
// чтобы слияние не затерло ее устаревшим снимком. Вызывается под commitMu.
func (e *Engine) noteConfirmed(t entity.Type, id string, rec entity.Record, deleted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.journal == nil {
		return
	}
	e.journal[t] = append(e.journal[t], confirmedWrite{id: id, record: rec.Clone(), deleted: deleted})
}

func (e *Engine) ownMutations(all []mutation.Mutation) []mutation.Mutation {
	out := make([]mutation.Mutation, 0, len(all))
	for _, m := range all {
		if m.UserID == "" || e.cfg.UserID == "" || m.UserID == e.cfg.UserID {
			out = append(out, m)
		}
	}
	return out
}

func (e *Engine) cancelled(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		err = context.Canceled
	}
	e.update(func(s *sync.Status) {
		s.Phase = sync.PhaseIdle
		s.LastError = err.Error()
	})
	return err
}

func (e *Engine) fail(err error) error {
	e.log.Error("Ошибка сверки", "error", err)
	e.update(func(s *sync.Status) {
		s.Phase = sync.PhaseError
		s.LastError = err.Error()
	})
	return err
}

func (e *Engine) setPhase(p sync.Phase, startedAt time.Time) {
	e.update(func(s *sync.Status) {
		s.Phase = p
		if !startedAt.IsZero() {
			s.PassStartedAt = startedAt
		}
	})
}

func (e *Engine) update(fn func(s *sync.Status)) {
	e.mu.Lock()
	fn(&e.status)
	status := e.status
	e.mu.Unlock()
	e.publish(status)
}

func (e *Engine) publish(status sync.Status) {
	status.FailedTypes = append([]entity.Type(nil), status.FailedTypes...)

	e.mu.Lock()
	subs := make([]chan sync.Status, 0, len(e.subs))
	for _, ch := range e.subs {
		subs = append(subs, ch)
	}
	e.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- status:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- status:
			default:
			}
		}
	}
}

func allRetryable(failed []sync.TypeError) bool {
	if len(failed) == 0 {
		return false
	}
	for _, f := range failed {
		if !sync.IsRetryable(f.Err) {
			return false
		}
	}
	return true
}

func typesOf(failed []sync.TypeError) []entity.Type {
	if len(failed) == 0 {
		return nil
	}
	types := make([]entity.Type, len(failed))
	for i, f := range failed {
		types[i] = f.EntityType
	}
	return types
}

func replayError(m mutation.Mutation, err error, deadLetter bool) sync.ReplayError {
	return sync.ReplayError{
		Seq:        m.Seq,
		MutationID: m.ID,
		EntityType: m.EntityType,
		RecordID:   m.RecordID,
		Err:        err,
		Message:    err.Error(),
		DeadLetter: deadLetter,
	}
}
