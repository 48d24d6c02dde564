package record

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"shiptrack/internal/domain/entity"
)

// Servicer операции над записями, доступные через API
type Servicer interface {
	List(ctx context.Context, t entity.Type, q Query) ([]entity.Record, error)
	Create(ctx context.Context, t entity.Type, rec entity.Record, key string) (entity.Record, error)
	Update(ctx context.Context, t entity.Type, id string, patch entity.Record) (entity.Record, error)
	Delete(ctx context.Context, t entity.Type, id string) error
}

type Service struct {
	repo     Repository
	notifier Notifier
	log      *slog.Logger
	maxPage  int
	newID    func() string
}

// NewService создает сервис записей; notifier может быть nil
func NewService(repo Repository, notifier Notifier, log *slog.Logger, maxPage int) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		log:      log.With("component", "record_service"),
		maxPage:  maxPage,
		newID:    uuid.NewString,
	}
}

func (s *Service) List(ctx context.Context, t entity.Type, q Query) ([]entity.Record, error) {
	if err := checkType(t); err != nil {
		return nil, err
	}
	if q.From < 0 || q.To < q.From {
		return nil, fmt.Errorf("%w: from=%d to=%d", ErrInvalidRange, q.From, q.To)
	}
	if s.maxPage > 0 && q.Limit() > s.maxPage {
		return nil, fmt.Errorf("%w: больше %d записей за запрос", ErrInvalidRange, s.maxPage)
	}

	if d, _ := entity.Lookup(t); !d.TenantScoped {
		q.CompanyID = ""
	}

	records, err := s.repo.List(ctx, t, q)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t, err)
	}
	if records == nil {
		records = []entity.Record{}
	}
	return records, nil
}

// Create сохраняет запись. Клиент присылает свой id; если его нет, сервер назначает UUID.
func (s *Service) Create(ctx context.Context, t entity.Type, rec entity.Record, key string) (entity.Record, error) {
	if err := checkType(t); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrInvalidData
	}

	rec = rec.WithPending(false)
	id, ok := entity.IDOf(t, rec)
	if !ok {
		if t.IDField() != entity.DefaultIDField {
			return nil, fmt.Errorf("%w: поле %s", entity.ErrMissingID, t.IDField())
		}
		id = s.newID()
		rec[entity.DefaultIDField] = id
	}

	stored := Stored{Type: t, ID: id, Data: rec}
	if d, _ := entity.Lookup(t); d.TenantScoped {
		stored.CompanyID, _ = entity.KeyOf(rec[entity.TenantField])
	}

	saved, created, err := s.repo.Insert(ctx, stored, key)
	if err != nil {
		s.log.Error("failed to insert record", "entity_type", t, "id", id, "error", err)
		return nil, fmt.Errorf("insert %s/%s: %w", t, id, err)
	}

	if created {
		s.publish(Change{EntityType: t, ID: id, Op: OpInsert})
	} else {
		s.log.Debug("insert replayed", "entity_type", t, "id", id, "idempotency_key", key)
	}
	return saved, nil
}

func (s *Service) Update(ctx context.Context, t entity.Type, id string, patch entity.Record) (entity.Record, error) {
	if err := checkType(t); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, entity.ErrMissingID
	}

	patch = patch.WithPending(false)
	if v, ok := patch[t.IDField()]; ok {
		if newID, _ := entity.KeyOf(v); newID != id {
			return nil, fmt.Errorf("%w: %s -> %v", ErrIDChange, id, v)
		}
		delete(patch, t.IDField())
	}

	saved, err := s.repo.Patch(ctx, t, id, patch)
	if err != nil {
		return nil, fmt.Errorf("patch %s/%s: %w", t, id, err)
	}

	s.publish(Change{EntityType: t, ID: id, Op: OpUpdate})
	return saved, nil
}

// Delete идемпотентен: отсутствующая запись не ошибка
func (s *Service) Delete(ctx context.Context, t entity.Type, id string) error {
	if err := checkType(t); err != nil {
		return err
	}
	if id == "" {
		return entity.ErrMissingID
	}

	deleted, err := s.repo.Delete(ctx, t, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", t, id, err)
	}
	if deleted {
		s.publish(Change{EntityType: t, ID: id, Op: OpDelete})
	}
	return nil
}

func (s *Service) publish(c Change) {
	if s.notifier != nil {
		s.notifier.Publish(c)
	}
}

func checkType(t entity.Type) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", entity.ErrUnknownType, t)
	}
	return nil
}
