package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"shiptrack/internal/domain/entity"
)

var (
	ErrTimeout       = errors.New("remote call timed out")
	ErrNetwork       = errors.New("network unavailable")
	ErrRemote        = errors.New("remote request failed")
	ErrOfflineCache  = errors.New("offline cache unavailable")
	ErrMergeConflict = errors.New("pending mutation conflicts with remote record")

	// ErrNoCachedData холодный старт офлайн с пустым кэшем
	ErrNoCachedData = errors.New("offline and no cached data")
	// ErrPassCoalesced проход уже идет, запланирован один повтор
	ErrPassCoalesced = errors.New("reconciliation already in progress")
)

// TimeoutError удаленный вызов превысил дедлайн. Повторяемая ошибка,
// кэш при ней не очищается.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() []error { return []error{ErrTimeout, e.Err} }

// NetworkError соединение потеряно во время вызова. Повторяемая ошибка.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() []error { return []error{ErrNetwork, e.Err} }

// RemoteFetchError сервер ответил ошибкой (доступ запрещен, неверный запрос
// и т.п.). Автоматически не повторяется.
type RemoteFetchError struct {
	Op         string
	EntityType entity.Type
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteFetchError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Op, e.EntityType, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.EntityType, msg)
}

func (e *RemoteFetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRemote}
	}
	return []error{ErrRemote, e.Err}
}

// NotFound сервер ответил 404
func (e *RemoteFetchError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// OfflineCacheError локальное хранилище недоступно (квота, повреждение).
// Лечится очисткой хранилища, а не проверкой соединения.
type OfflineCacheError struct {
	Op  string
	Err error
}

func (e *OfflineCacheError) Error() string {
	return fmt.Sprintf("offline cache %s: %v", e.Op, e.Err)
}

func (e *OfflineCacheError) Unwrap() []error { return []error{ErrOfflineCache, e.Err} }

// MergeConflictError ожидающий create совпал по id с другой записью на
// сервере. Побеждает сервер, конфликт попадает в результат.
type MergeConflictError struct {
	EntityType entity.Type
	RecordID   string
	MutationID string
	Local      entity.Record
	Remote     entity.Record
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict on %s/%s (mutation %s): remote record wins",
		e.EntityType, e.RecordID, e.MutationID)
}

func (e *MergeConflictError) Unwrap() error { return ErrMergeConflict }

// IsRetryable временная ошибка связи
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetwork)
}

// IsCancelled вызывающий отменил операцию
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
