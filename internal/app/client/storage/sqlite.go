package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/mutation"
	"shiptrack/internal/domain/sync"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, cacheErr("open", fmt.Errorf("ошибка открытия базы данных: %w", err))
	}

	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, cacheErr("open", err)
	}

	storage := &SQLiteStorage{db: db}

	if err := storage.initTables(); err != nil {
		db.Close()
		return nil, cacheErr("init", fmt.Errorf("ошибка инициализации таблиц: %w", err))
	}

	return storage, nil
}

func (s *SQLiteStorage) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS entities (
			entity_type TEXT NOT NULL,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (entity_type, id)
		);

		CREATE INDEX IF NOT EXISTS idx_entities_position ON entities(entity_type, position);

		CREATE TABLE IF NOT EXISTS mutations (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			record_id TEXT NOT NULL,
			payload TEXT,
			user_id TEXT NOT NULL DEFAULT '',
			enqueued_at TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			next_attempt_at TEXT,
			last_error TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending'
		);

		CREATE INDEX IF NOT EXISTS idx_mutations_status ON mutations(status, seq);
	`)

	return err
}

func (s *SQLiteStorage) GetAll(ctx context.Context, t entity.Type) ([]entity.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT data FROM entities WHERE entity_type = ? ORDER BY position, id", string(t))
	if err != nil {
		return nil, cacheErr("get all", err)
	}
	defer rows.Close()

	records := []entity.Record{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, cacheErr("get all", err)
		}

		var rec entity.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, cacheErr("get all", fmt.Errorf("ошибка парсинга записи %s: %w", t, err))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("get all", err)
	}

	return records, nil
}

func (s *SQLiteStorage) SaveAll(ctx context.Context, t entity.Type, records []entity.Record) error {
	return s.ReplaceAll(ctx, map[entity.Type][]entity.Record{t: records})
}

// ReplaceAll заменяет несколько коллекций в одной транзакции
func (s *SQLiteStorage) ReplaceAll(ctx context.Context, sets map[entity.Type][]entity.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cacheErr("save all", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO entities (entity_type, id, position, data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return cacheErr("save all", err)
	}
	defer stmt.Close()

	for t, records := range sets {
		if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE entity_type = ?", string(t)); err != nil {
			return cacheErr("save all", err)
		}

		for i, rec := range records {
			id, ok := entity.IDOf(t, rec)
			if !ok {
				return cacheErr("save all", fmt.Errorf("%s record #%d: %w", t, i, entity.ErrMissingID))
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return cacheErr("save all", fmt.Errorf("ошибка сериализации записи: %w", err))
			}
			if _, err := stmt.ExecContext(ctx, string(t), id, i, string(data)); err != nil {
				return cacheErr("save all", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return cacheErr("save all", err)
	}
	return nil
}

func (s *SQLiteStorage) HasData(ctx context.Context, t entity.Type) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM entities WHERE entity_type = ?)", string(t)).Scan(&exists)
	if err != nil {
		return false, cacheErr("has data", err)
	}
	return exists, nil
}

func (s *SQLiteStorage) Put(ctx context.Context, t entity.Type, rec entity.Record) error {
	if err := putRecord(ctx, s.db, t, rec); err != nil {
		return cacheErr("put", err)
	}
	return nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, t entity.Type, id string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM entities WHERE entity_type = ? AND id = ?", string(t), id); err != nil {
		return cacheErr("delete", err)
	}
	return nil
}

func (s *SQLiteStorage) Enqueue(ctx context.Context, m mutation.Mutation) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	seq, err := insertMutation(ctx, s.db, m)
	if err != nil {
		return 0, cacheErr("enqueue", err)
	}
	return seq, nil
}

func (s *SQLiteStorage) WriteOffline(ctx context.Context, t entity.Type, rec entity.Record, m mutation.Mutation) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, cacheErr("write offline", err)
	}
	defer tx.Rollback()

	if m.Kind == mutation.Delete {
		_, err = tx.ExecContext(ctx,
			"DELETE FROM entities WHERE entity_type = ? AND id = ?", string(t), m.RecordID)
	} else {
		err = putRecord(ctx, tx, t, rec)
	}
	if err != nil {
		return 0, cacheErr("write offline", err)
	}

	seq, err := insertMutation(ctx, tx, m)
	if err != nil {
		return 0, cacheErr("write offline", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, cacheErr("write offline", err)
	}
	return seq, nil
}

func (s *SQLiteStorage) Mutations(ctx context.Context) ([]mutation.Mutation, error) {
	return s.listMutations(ctx, mutation.StatusPending)
}

func (s *SQLiteStorage) Failed(ctx context.Context) ([]mutation.Mutation, error) {
	return s.listMutations(ctx, mutation.StatusFailed)
}

func (s *SQLiteStorage) Remove(ctx context.Context, seq int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM mutations WHERE seq = ?", seq); err != nil {
		return cacheErr("remove", err)
	}
	return nil
}

func (s *SQLiteStorage) MarkAttempt(ctx context.Context, seq int64, lastErr string, next time.Time) error {
	return s.updateMutation(ctx, "mark attempt", `
		UPDATE mutations
		SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?
		WHERE seq = ?
	`, lastErr, formatTime(next), seq)
}

func (s *SQLiteStorage) MarkFailed(ctx context.Context, seq int64, lastErr string) error {
	return s.updateMutation(ctx, "mark failed", `
		UPDATE mutations
		SET attempts = attempts + 1, last_error = ?, status = ?
		WHERE seq = ?
	`, lastErr, string(mutation.StatusFailed), seq)
}

func (s *SQLiteStorage) Requeue(ctx context.Context, seq int64) error {
	return s.updateMutation(ctx, "requeue", `
		UPDATE mutations
		SET attempts = 0, last_error = '', next_attempt_at = NULL, status = ?
		WHERE seq = ?
	`, string(mutation.StatusPending), seq)
}

func (s *SQLiteStorage) CountPending(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM mutations WHERE status = ?", string(mutation.StatusPending)).Scan(&count)
	if err != nil {
		return 0, cacheErr("count", fmt.Errorf("ошибка подсчета мутаций: %w", err))
	}
	return count, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) updateMutation(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return cacheErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cacheErr(op, err)
	}
	if n == 0 {
		return mutation.ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) listMutations(ctx context.Context, status mutation.Status) ([]mutation.Mutation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, kind, entity_type, record_id, payload, user_id,
		       enqueued_at, attempts, next_attempt_at, last_error, status
		FROM mutations
		WHERE status = ?
		ORDER BY seq
	`, string(status))
	if err != nil {
		return nil, cacheErr("list mutations", err)
	}
	defer rows.Close()

	var list []mutation.Mutation
	for rows.Next() {
		var (
			m           mutation.Mutation
			payload     sql.NullString
			enqueuedAt  string
			nextAttempt sql.NullString
		)
		if err := rows.Scan(&m.Seq, &m.ID, &m.Kind, &m.EntityType, &m.RecordID, &payload,
			&m.UserID, &enqueuedAt, &m.Attempts, &nextAttempt, &m.LastError, &m.Status); err != nil {
			return nil, cacheErr("list mutations", err)
		}

		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &m.Payload); err != nil {
				return nil, cacheErr("list mutations", fmt.Errorf("mutation %d payload: %w", m.Seq, err))
			}
		}
		m.EnqueuedAt, _ = time.Parse(time.RFC3339Nano, enqueuedAt)
		if nextAttempt.Valid {
			m.NextAttemptAt, _ = time.Parse(time.RFC3339Nano, nextAttempt.String)
		}

		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("list mutations", err)
	}

	return list, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putRecord(ctx context.Context, db execer, t entity.Type, rec entity.Record) error {
	id, ok := entity.IDOf(t, rec)
	if !ok {
		return entity.ErrMissingID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи: %w", err)
	}

	// Новые записи встают в начало списка
	_, err = db.ExecContext(ctx, `
		INSERT INTO entities (entity_type, id, position, data)
		VALUES (?, ?, (SELECT COALESCE(MIN(position), 0) - 1 FROM entities WHERE entity_type = ?), ?)
		ON CONFLICT (entity_type, id) DO UPDATE SET data = excluded.data
	`, string(t), id, string(t), string(data))
	return err
}

func insertMutation(ctx context.Context, db execer, m mutation.Mutation) (int64, error) {
	var payload sql.NullString
	if m.Payload != nil {
		data, err := json.Marshal(m.Payload)
		if err != nil {
			return 0, fmt.Errorf("ошибка сериализации мутации: %w", err)
		}
		payload = sql.NullString{String: string(data), Valid: true}
	}

	status := m.Status
	if status == "" {
		status = mutation.StatusPending
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO mutations (id, kind, entity_type, record_id, payload, user_id,
		                       enqueued_at, attempts, next_attempt_at, last_error, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, string(m.Kind), string(m.EntityType), m.RecordID, payload, m.UserID,
		m.EnqueuedAt.UTC().Format(time.RFC3339Nano), m.Attempts, formatTime(m.NextAttemptAt),
		m.LastError, string(status))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func cacheErr(op string, err error) error {
	var cacheError *sync.OfflineCacheError
	if errors.As(err, &cacheError) {
		return err
	}
	return &sync.OfflineCacheError{Op: op, Err: err}
}
