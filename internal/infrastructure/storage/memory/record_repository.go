// Package memory хранит записи сервера в памяти процесса, для локального запуска без PostgreSQL.
package memory

import (
	"context"
	gosync "sync"

	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/record"
)

type row struct {
	id        string
	companyID string
	data      entity.Record
}

type keyRef struct {
	typ entity.Type
	id  string
}

type RecordRepository struct {
	mu   gosync.RWMutex
	rows map[entity.Type][]row
	keys map[string]keyRef
}

func NewRecordRepository() *RecordRepository {
	return &RecordRepository{
		rows: make(map[entity.Type][]row),
		keys: make(map[string]keyRef),
	}
}

func (r *RecordRepository) List(ctx context.Context, t entity.Type, q record.Query) ([]entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entity.Record, 0)
	pos := 0
	for _, rw := range r.rows[t] {
		if q.CompanyID != "" && rw.companyID != q.CompanyID {
			continue
		}
		if pos >= q.From && pos <= q.To {
			out = append(out, rw.data.Clone())
		}
		pos++
		if pos > q.To {
			break
		}
	}
	return out, nil
}

func (r *RecordRepository) Insert(ctx context.Context, rec record.Stored, key string) (entity.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if key != "" {
		if ref, ok := r.keys[key]; ok {
			if i := r.index(ref.typ, ref.id); i >= 0 {
				return r.rows[ref.typ][i].data.Clone(), false, nil
			}
			return rec.Data.Clone(), false, nil
		}
	}

	created := false
	if i := r.index(rec.Type, rec.ID); i < 0 {
		r.rows[rec.Type] = append(r.rows[rec.Type], row{id: rec.ID, companyID: rec.CompanyID, data: rec.Data.Clone()})
		created = true
	}
	if key != "" {
		r.keys[key] = keyRef{typ: rec.Type, id: rec.ID}
	}

	return r.rows[rec.Type][r.index(rec.Type, rec.ID)].data.Clone(), created, nil
}

func (r *RecordRepository) Patch(ctx context.Context, t entity.Type, id string, patch entity.Record) (entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(t, id)
	if i < 0 {
		return nil, record.ErrNotFound
	}

	rw := &r.rows[t][i]
	rw.data = rw.data.Patch(patch)
	if company, ok := entity.KeyOf(patch[entity.TenantField]); ok {
		rw.companyID = company
	}
	return rw.data.Clone(), nil
}

func (r *RecordRepository) Delete(ctx context.Context, t entity.Type, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(t, id)
	if i < 0 {
		return false, nil
	}
	rows := r.rows[t]
	r.rows[t] = append(rows[:i:i], rows[i+1:]...)
	return true, nil
}

func (r *RecordRepository) index(t entity.Type, id string) int {
	for i, rw := range r.rows[t] {
		if rw.id == id {
			return i
		}
	}
	return -1
}
