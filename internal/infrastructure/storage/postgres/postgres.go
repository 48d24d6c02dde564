package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"shiptrack/internal/app/server/config"
	"shiptrack/internal/infrastructure/migration"
)

type Storage struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// New подключается к базе и применяет миграции
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Storage, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("parse database uri: %w", err)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migration.NewMigration(cfg.DB.DatabaseURI, migration.DefaultEngine).Up(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	log.Info("Подключение к PostgreSQL установлено", "max_conns", poolCfg.MaxConns)
	return &Storage{pool: pool, log: log}, nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping для health check
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
