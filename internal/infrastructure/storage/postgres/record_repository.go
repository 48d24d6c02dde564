package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/record"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type RecordRepository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewRecordRepository(pool *pgxpool.Pool, log *slog.Logger) *RecordRepository {
	return &RecordRepository{
		pool: pool,
		log:  log.With("component", "record_repository"),
	}
}

func (r *RecordRepository) List(ctx context.Context, t entity.Type, q record.Query) ([]entity.Record, error) {
	const query = `
		SELECT data
		FROM entities
		WHERE entity_type = $1 AND ($2 = '' OR company_id = $2)
		ORDER BY seq
		OFFSET $3 LIMIT $4`

	rows, err := r.pool.Query(ctx, query, string(t), q.CompanyID, q.From, q.Limit())
	if err != nil {
		r.log.Error("failed to list records", "entity_type", t, "error", err)
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records := make([]entity.Record, 0, q.Limit())
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := decode(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (r *RecordRepository) Insert(ctx context.Context, rec record.Stored, key string) (entity.Record, bool, error) {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", record.ErrInvalidData, err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if key != "" {
		var typ, id string
		err := tx.QueryRow(ctx,
			`SELECT entity_type, id FROM idempotency_keys WHERE key = $1`, key,
		).Scan(&typ, &id)
		switch {
		case err == nil:
			existing, err := r.get(ctx, tx, entity.Type(typ), id)
			if errors.Is(err, record.ErrNotFound) {
				// запись уже удалили после первой вставки
				return rec.Data, false, nil
			}
			return existing, false, err
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	const insert = `
		INSERT INTO entities (entity_type, id, company_id, data)
		VALUES ($1, $2, NULLIF($3, ''), $4::jsonb)
		ON CONFLICT (entity_type, id) DO NOTHING
		RETURNING data`

	created := true
	var raw []byte
	err = tx.QueryRow(ctx, insert, string(rec.Type), rec.ID, rec.CompanyID, string(data)).Scan(&raw)
	var saved entity.Record
	switch {
	case err == nil:
		if saved, err = decode(raw); err != nil {
			return nil, false, err
		}
	case errors.Is(err, pgx.ErrNoRows):
		created = false
		if saved, err = r.get(ctx, tx, rec.Type, rec.ID); err != nil {
			return nil, false, err
		}
	default:
		r.log.Error("failed to insert record", "entity_type", rec.Type, "id", rec.ID, "error", err)
		return nil, false, fmt.Errorf("insert record: %w", err)
	}

	if key != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO idempotency_keys (key, entity_type, id) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
			key, string(rec.Type), rec.ID,
		); err != nil {
			return nil, false, fmt.Errorf("save idempotency key: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return saved, created, nil
}

func (r *RecordRepository) Patch(ctx context.Context, t entity.Type, id string, patch entity.Record) (entity.Record, error) {
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", record.ErrInvalidData, err)
	}

	const query = `
		UPDATE entities
		SET data = data || $3::jsonb,
		    company_id = COALESCE($3::jsonb ->> 'company_id', company_id),
		    updated_at = NOW()
		WHERE entity_type = $1 AND id = $2
		RETURNING data`

	var raw []byte
	err = r.pool.QueryRow(ctx, query, string(t), id, string(data)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, record.ErrNotFound
		}
		r.log.Error("failed to patch record", "entity_type", t, "id", id, "error", err)
		return nil, fmt.Errorf("patch record: %w", err)
	}
	return decode(raw)
}

func (r *RecordRepository) Delete(ctx context.Context, t entity.Type, id string) (bool, error) {
	const query = `DELETE FROM entities WHERE entity_type = $1 AND id = $2`

	result, err := r.pool.Exec(ctx, query, string(t), id)
	if err != nil {
		r.log.Error("failed to delete record", "entity_type", t, "id", id, "error", err)
		return false, fmt.Errorf("delete record: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *RecordRepository) get(ctx context.Context, q querier, t entity.Type, id string) (entity.Record, error) {
	var raw []byte
	err := q.QueryRow(ctx,
		`SELECT data FROM entities WHERE entity_type = $1 AND id = $2`, string(t), id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, record.ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return decode(raw)
}

func decode(raw []byte) (entity.Record, error) {
	var rec entity.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
