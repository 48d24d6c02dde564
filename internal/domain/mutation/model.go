package mutation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"shiptrack/internal/domain/entity"
)

// Kind тип отложенной операции записи
type Kind string

const (
	Create Kind = "create"
	Update Kind = "update"
	Delete Kind = "delete"
)

func (k Kind) Valid() bool {
	switch k {
	case Create, Update, Delete:
		return true
	}
	return false
}

// Status состояние мутации в очереди
type Status string

const (
	StatusPending Status = "pending"
	// StatusFailed мутация исчерпала попытки и отложена в failed
	StatusFailed Status = "failed"
)

// Mutation запись, сделанная без связи с сервером и ожидающая повтора.
// Seq назначает очередь, он задает порядок отправки; ID служит ключом
// идемпотентности для сервера.
type Mutation struct {
	Seq           int64         `json:"seq"`
	ID            string        `json:"id"`
	Kind          Kind          `json:"kind"`
	EntityType    entity.Type   `json:"entity_type"`
	RecordID      string        `json:"record_id"`
	Payload       entity.Record `json:"payload,omitempty"`
	UserID        string        `json:"user_id,omitempty"`
	EnqueuedAt    time.Time     `json:"enqueued_at"`
	Attempts      int           `json:"attempts"`
	NextAttemptAt time.Time     `json:"next_attempt_at,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
	Status        Status        `json:"status"`
}

// New создает мутацию с новым ключом идемпотентности
func New(kind Kind, typ entity.Type, recordID string, payload entity.Record, userID string, now time.Time) Mutation {
	return Mutation{
		ID:         uuid.NewString(),
		Kind:       kind,
		EntityType: typ,
		RecordID:   recordID,
		Payload:    payload.Clone(),
		UserID:     userID,
		EnqueuedAt: now.UTC(),
		Status:     StatusPending,
	}
}

// Key идентифицирует целевую запись среди всех типов
func (m Mutation) Key() string {
	return string(m.EntityType) + "/" + m.RecordID
}

// Validate проверяет, что мутацию можно поставить в очередь
func (m Mutation) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, m.Kind)
	}
	if !m.EntityType.Valid() {
		return fmt.Errorf("%w: %q", entity.ErrUnknownType, m.EntityType)
	}
	if m.RecordID == "" {
		return entity.ErrMissingID
	}
	if m.ID == "" {
		return ErrMissingIdempotencyKey
	}
	if m.Kind == Create && len(m.Payload) == 0 {
		return ErrEmptyPayload
	}
	return nil
}

// Ready истекла ли задержка после предыдущей неудачной попытки
func (m Mutation) Ready(now time.Time) bool {
	return m.NextAttemptAt.IsZero() || !now.Before(m.NextAttemptAt)
}

// Backoff задержка перед попыткой attempts+1: base удваивается с каждой
// попыткой, но не больше max
func Backoff(attempts int, base, max time.Duration) time.Duration {
	if attempts <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
