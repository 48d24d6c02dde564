package client

import (
	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/mutation"
	"shiptrack/internal/domain/sync"
)

// confirmedWrite запись, подтвержденная сервером во время прохода сверки
type confirmedWrite struct {
	id      string
	record  entity.Record
	deleted bool
}

// collection список записей одного типа с индексом по id
type collection struct {
	typ     entity.Type
	records []entity.Record
}

func (c *collection) index(id string) int {
	for i, rec := range c.records {
		if recID, ok := entity.IDOf(c.typ, rec); ok && recID == id {
			return i
		}
	}
	return -1
}

func (c *collection) upsert(id string, rec entity.Record) {
	if i := c.index(id); i >= 0 {
		c.records[i] = rec
		return
	}
	c.records = append([]entity.Record{rec}, c.records...)
}

func (c *collection) remove(id string) {
	if i := c.index(id); i >= 0 {
		c.records = append(c.records[:i], c.records[i+1:]...)
	}
}

// mergeCollection накладывает локальные изменения на серверный список.
// Записи без id отбрасываются, их число возвращается вызывающему.
// Входные данные не изменяются.
func mergeCollection(t entity.Type, remote []entity.Record, confirmed []confirmedWrite, pending []mutation.Mutation) ([]entity.Record, []*sync.MergeConflictError, int) {
	c := &collection{typ: t, records: make([]entity.Record, 0, len(remote))}
	seen := make(map[string]struct{}, len(remote))
	dropped := 0

	for _, rec := range remote {
		id, ok := entity.IDOf(t, rec)
		if !ok {
			dropped++
			continue
		}
		if _, dup := seen[id]; dup {
			dropped++
			continue
		}
		seen[id] = struct{}{}
		c.records = append(c.records, rec.WithPending(false))
	}

	for _, w := range confirmed {
		if w.deleted {
			c.remove(w.id)
			continue
		}
		c.upsert(w.id, w.record.WithPending(false))
	}

	var conflicts []*sync.MergeConflictError
	for _, m := range pending {
		if m.EntityType != t {
			continue
		}
		switch m.Kind {
		case mutation.Create:
			local := withID(t, m.Payload, m.RecordID).WithPending(true)
			i := c.index(m.RecordID)
			if i < 0 {
				c.records = append([]entity.Record{local}, c.records...)
				continue
			}
			existing := c.records[i]
			if existing.Pending() || entity.Covers(existing, local) {
				// уже применено на сервере или создано раньше в этой же очереди
				continue
			}
			conflicts = append(conflicts, &sync.MergeConflictError{
				EntityType: t,
				RecordID:   m.RecordID,
				MutationID: m.ID,
				Local:      local,
				Remote:     existing.Clone(),
			})
		case mutation.Update:
			if i := c.index(m.RecordID); i >= 0 {
				c.records[i] = c.records[i].Patch(m.Payload).WithPending(true)
			}
		case mutation.Delete:
			c.remove(m.RecordID)
		}
	}

	return c.records, conflicts, dropped
}

// overlayPending применяет к подтвержденной записи еще не отправленные
// мутации той же записи. nil, если запись удалена более поздней мутацией.
func overlayPending(rec entity.Record, later []mutation.Mutation) entity.Record {
	out := rec.WithPending(false)
	for _, m := range later {
		switch m.Kind {
		case mutation.Update:
			out = out.Patch(m.Payload).WithPending(true)
		case mutation.Delete:
			return nil
		}
	}
	return out
}

func withID(t entity.Type, rec entity.Record, id string) entity.Record {
	out := rec.Clone()
	if out == nil {
		out = entity.Record{}
	}
	if _, ok := entity.IDOf(t, out); !ok {
		out[t.IDField()] = id
	}
	return out
}
