package storage

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/mutation"
)

// MemoryStorage - in-memory хранилище для тестов и режима без диска
type MemoryStorage struct {
	mu        gosync.Mutex
	entities  map[entity.Type][]entity.Record
	mutations map[int64]mutation.Mutation
	seq       int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entities:  make(map[entity.Type][]entity.Record),
		mutations: make(map[int64]mutation.Mutation),
	}
}

func (m *MemoryStorage) GetAll(ctx context.Context, t entity.Type) ([]entity.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]entity.Record, 0, len(m.entities[t]))
	for _, rec := range m.entities[t] {
		records = append(records, rec.Clone())
	}
	return records, nil
}

func (m *MemoryStorage) SaveAll(ctx context.Context, t entity.Type, records []entity.Record) error {
	return m.ReplaceAll(ctx, map[entity.Type][]entity.Record{t: records})
}

func (m *MemoryStorage) ReplaceAll(ctx context.Context, sets map[entity.Type][]entity.Record) error {
	lists := make(map[entity.Type][]entity.Record, len(sets))
	for t, records := range sets {
		list := make([]entity.Record, 0, len(records))
		for i, rec := range records {
			if _, ok := entity.IDOf(t, rec); !ok {
				return cacheErr("save all", fmt.Errorf("%s record #%d: %w", t, i, entity.ErrMissingID))
			}
			list = append(list, rec.Clone())
		}
		lists[t] = list
	}
	if err := ctx.Err(); err != nil {
		return cacheErr("save all", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for t, list := range lists {
		m.entities[t] = list
	}
	return nil
}

func (m *MemoryStorage) HasData(ctx context.Context, t entity.Type) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entities[t]) > 0, nil
}

func (m *MemoryStorage) Put(ctx context.Context, t entity.Type, rec entity.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.put(t, rec); err != nil {
		return cacheErr("put", err)
	}
	return nil
}

func (m *MemoryStorage) Delete(ctx context.Context, t entity.Type, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delete(t, id)
	return nil
}

func (m *MemoryStorage) Enqueue(ctx context.Context, mut mutation.Mutation) (int64, error) {
	if err := mut.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueue(mut), nil
}

func (m *MemoryStorage) WriteOffline(ctx context.Context, t entity.Type, rec entity.Record, mut mutation.Mutation) (int64, error) {
	if err := mut.Validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if mut.Kind == mutation.Delete {
		m.delete(t, mut.RecordID)
	} else if err := m.put(t, rec); err != nil {
		return 0, cacheErr("write offline", err)
	}
	return m.enqueue(mut), nil
}

func (m *MemoryStorage) Mutations(ctx context.Context) ([]mutation.Mutation, error) {
	return m.list(mutation.StatusPending), nil
}

func (m *MemoryStorage) Failed(ctx context.Context) ([]mutation.Mutation, error) {
	return m.list(mutation.StatusFailed), nil
}

func (m *MemoryStorage) Remove(ctx context.Context, seq int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mutations, seq)
	return nil
}

func (m *MemoryStorage) MarkAttempt(ctx context.Context, seq int64, lastErr string, next time.Time) error {
	return m.update(seq, func(mut *mutation.Mutation) {
		mut.Attempts++
		mut.LastError = lastErr
		mut.NextAttemptAt = next.UTC()
	})
}

func (m *MemoryStorage) MarkFailed(ctx context.Context, seq int64, lastErr string) error {
	return m.update(seq, func(mut *mutation.Mutation) {
		mut.Attempts++
		mut.LastError = lastErr
		mut.Status = mutation.StatusFailed
	})
}

func (m *MemoryStorage) Requeue(ctx context.Context, seq int64) error {
	return m.update(seq, func(mut *mutation.Mutation) {
		mut.Attempts = 0
		mut.LastError = ""
		mut.NextAttemptAt = time.Time{}
		mut.Status = mutation.StatusPending
	})
}

func (m *MemoryStorage) CountPending(ctx context.Context) (int, error) {
	return len(m.list(mutation.StatusPending)), nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) put(t entity.Type, rec entity.Record) error {
	id, ok := entity.IDOf(t, rec)
	if !ok {
		return entity.ErrMissingID
	}
	list := m.entities[t]
	for i, existing := range list {
		if existingID, _ := entity.IDOf(t, existing); existingID == id {
			list[i] = rec.Clone()
			return nil
		}
	}
	m.entities[t] = append([]entity.Record{rec.Clone()}, list...)
	return nil
}

func (m *MemoryStorage) delete(t entity.Type, id string) {
	list := m.entities[t]
	for i, existing := range list {
		if existingID, _ := entity.IDOf(t, existing); existingID == id {
			m.entities[t] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (m *MemoryStorage) enqueue(mut mutation.Mutation) int64 {
	m.seq++
	mut.Seq = m.seq
	mut.Payload = mut.Payload.Clone()
	if mut.Status == "" {
		mut.Status = mutation.StatusPending
	}
	m.mutations[mut.Seq] = mut
	return mut.Seq
}

func (m *MemoryStorage) list(status mutation.Status) []mutation.Mutation {
	m.mu.Lock()
	defer m.mu.Unlock()

	var list []mutation.Mutation
	for _, mut := range m.mutations {
		if mut.Status == status {
			mut.Payload = mut.Payload.Clone()
			list = append(list, mut)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	return list
}

func (m *MemoryStorage) update(seq int64, fn func(*mutation.Mutation)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mut, ok := m.mutations[seq]
	if !ok {
		return mutation.ErrNotFound
	}
	fn(&mut)
	m.mutations[seq] = mut
	return nil
}
