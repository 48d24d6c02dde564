package record

import (
	"context"

	"shiptrack/internal/domain/entity"
)

// Repository хранилище записей сервера
type Repository interface {
	List(ctx context.Context, t entity.Type, q Query) ([]entity.Record, error)
	// Insert сохраняет запись; повтор ключа идемпотентности или существующий id
	// возвращают сохраненную версию с created=false
	Insert(ctx context.Context, rec Stored, key string) (stored entity.Record, created bool, err error)
	// Patch сливает patch с сохраненной записью; ErrNotFound если записи нет
	Patch(ctx context.Context, t entity.Type, id string, patch entity.Record) (entity.Record, error)
	Delete(ctx context.Context, t entity.Type, id string) (bool, error)
}

// Notifier получает изменения после успешной записи
type Notifier interface {
	Publish(change Change)
}
