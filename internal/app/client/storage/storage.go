// Package storage постоянное состояние клиента: кэш коллекций и
// очередь мутаций, ожидающих отправки.
package storage

import (
	"context"
	"time"

	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/mutation"
)

// Store локальный кэш коллекций по типам сущностей
type Store interface {
	// GetAll все записи типа в порядке списка; пусто для неизвестного
	// или ни разу не сохраненного типа
	GetAll(ctx context.Context, t entity.Type) ([]entity.Record, error)
	// SaveAll атомарно заменяет набор записей типа
	SaveAll(ctx context.Context, t entity.Type, records []entity.Record) error
	// ReplaceAll заменяет несколько типов разом, все или ничего
	ReplaceAll(ctx context.Context, sets map[entity.Type][]entity.Record) error
	HasData(ctx context.Context, t entity.Type) (bool, error)
	// Put вставляет или заменяет запись; новые идут в начало
	Put(ctx context.Context, t entity.Type, rec entity.Record) error
	Delete(ctx context.Context, t entity.Type, id string) error
}

// Queue очередь мутаций, ожидающих отправки на сервер (FIFO по Seq)
type Queue interface {
	Enqueue(ctx context.Context, m mutation.Mutation) (int64, error)
	// Mutations ожидающие мутации, старые первыми
	Mutations(ctx context.Context) ([]mutation.Mutation, error)
	Remove(ctx context.Context, seq int64) error
	MarkAttempt(ctx context.Context, seq int64, lastErr string, next time.Time) error
	MarkFailed(ctx context.Context, seq int64, lastErr string) error
	Failed(ctx context.Context) ([]mutation.Mutation, error)
	Requeue(ctx context.Context, seq int64) error
	CountPending(ctx context.Context) (int, error)
}

// Storage объединяет кэш и очередь. WriteOffline за один шаг применяет
// оптимистичное изменение записи и ставит мутацию в очередь, поэтому кэш
// всегда отражает все неотправленные записи.
type Storage interface {
	Store
	Queue
	WriteOffline(ctx context.Context, t entity.Type, rec entity.Record, m mutation.Mutation) (int64, error)
	Close() error
}
