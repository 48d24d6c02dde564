package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"shiptrack/internal/app/client/state"
	"shiptrack/internal/app/client/storage"
	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/mutation"
)

// Writer путь записи, зависящий от связи: онлайн пишет сразу на сервер,
// офлайн применяет изменение локально и ставит мутацию в очередь.
type Writer struct {
	engine *Engine
	store  storage.Storage
	gw     Gateway
	conn   Connectivity
	state  *state.Container
	userID string
	log    *slog.Logger
	now    func() time.Time
}

func NewWriter(engine *Engine, userID string, log *slog.Logger) *Writer {
	return &Writer{
		engine: engine,
		store:  engine.store,
		gw:     engine.gw,
		conn:   engine.conn,
		state:  engine.state,
		userID: userID,
		log:    log.With("component", "writer"),
		now:    time.Now,
	}
}

// Create создает запись. Офлайн запись получает UUID, если id не задан.
func (w *Writer) Create(ctx context.Context, t entity.Type, rec entity.Record) (entity.Record, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownType, t)
	}
	rec = rec.WithPending(false)

	if w.conn.IsOnline() {
		confirmed, err := w.gw.Insert(ctx, t, rec, uuid.NewString())
		if err != nil {
			return nil, err
		}
		if err := w.commitConfirmed(ctx, t, confirmed); err != nil {
			return nil, err
		}
		return confirmed, nil
	}

	id, ok := entity.IDOf(t, rec)
	if !ok {
		if t.IDField() != entity.DefaultIDField {
			return nil, fmt.Errorf("%w: поле %s", entity.ErrMissingID, t.IDField())
		}
		id = uuid.NewString()
		rec[t.IDField()] = id
	}
	m := mutation.New(mutation.Create, t, id, rec, w.userID, w.now())
	local := rec.WithPending(true)
	if err := w.commitOffline(ctx, t, local, m); err != nil {
		return nil, err
	}
	return local, nil
}

// Update применяет частичное изменение patch к записи id
func (w *Writer) Update(ctx context.Context, t entity.Type, id string, patch entity.Record) (entity.Record, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownType, t)
	}
	patch = patch.WithPending(false)
	delete(patch, t.IDField())

	if w.conn.IsOnline() {
		confirmed, err := w.gw.Update(ctx, t, id, patch, uuid.NewString())
		if err != nil {
			return nil, err
		}
		if err := w.commitConfirmed(ctx, t, confirmed); err != nil {
			return nil, err
		}
		return confirmed, nil
	}

	current, err := w.find(ctx, t, id)
	if err != nil {
		return nil, err
	}
	m := mutation.New(mutation.Update, t, id, patch, w.userID, w.now())
	local := current.Patch(patch).WithPending(true)
	if err := w.commitOffline(ctx, t, local, m); err != nil {
		return nil, err
	}
	return local, nil
}

func (w *Writer) Delete(ctx context.Context, t entity.Type, id string) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", entity.ErrUnknownType, t)
	}

	if w.conn.IsOnline() {
		if err := w.gw.Delete(ctx, t, id, uuid.NewString()); err != nil {
			return err
		}

		w.engine.commitMu.Lock()
		defer w.engine.commitMu.Unlock()
		if err := w.store.Delete(ctx, t, id); err != nil {
			return err
		}
		w.state.Dispatch(state.RemoveRecord{EntityType: t, ID: id})
		w.engine.noteConfirmed(t, id, nil, true)
		return nil
	}

	m := mutation.New(mutation.Delete, t, id, nil, w.userID, w.now())
	return w.commitOffline(ctx, t, nil, m)
}

func (w *Writer) commitConfirmed(ctx context.Context, t entity.Type, confirmed entity.Record) error {
	id, ok := entity.IDOf(t, confirmed)
	if !ok {
		w.log.Warn("Сервер вернул запись без id", "entity_type", t)
		return nil
	}

	w.engine.commitMu.Lock()
	defer w.engine.commitMu.Unlock()

	if err := w.store.Put(ctx, t, confirmed); err != nil {
		return err
	}
	w.state.Dispatch(state.UpsertRecord{EntityType: t, Record: confirmed})
	w.engine.noteConfirmed(t, id, confirmed, false)
	return nil
}

func (w *Writer) commitOffline(ctx context.Context, t entity.Type, local entity.Record, m mutation.Mutation) error {
	w.engine.commitMu.Lock()
	seq, err := w.store.WriteOffline(ctx, t, local, m)
	if err == nil {
		if m.Kind == mutation.Delete {
			w.state.Dispatch(state.RemoveRecord{EntityType: t, ID: m.RecordID})
		} else {
			w.state.Dispatch(state.UpsertRecord{EntityType: t, Record: local})
		}
	}
	w.engine.commitMu.Unlock()
	if err != nil {
		return err
	}

	w.log.Debug("Мутация поставлена в очередь",
		"seq", seq, "kind", m.Kind, "entity_type", t, "id", m.RecordID)

	if _, err := w.engine.RefreshPending(ctx); err != nil {
		w.log.Warn("Не удалось обновить счетчик очереди", "error", err)
	}
	return nil
}

func (w *Writer) find(ctx context.Context, t entity.Type, id string) (entity.Record, error) {
	for _, rec := range w.state.Collection(t) {
		if recID, ok := entity.IDOf(t, rec); ok && recID == id {
			return rec, nil
		}
	}
	records, err := w.store.GetAll(ctx, t)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if recID, ok := entity.IDOf(t, rec); ok && recID == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%s/%s: %w", t, id, entity.ErrNotFound)
}
