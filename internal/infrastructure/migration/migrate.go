package migration

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	// Blank import required for PostgreSQL driver registration for migrations
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrator интерфейс для самой библиотеки migrate.Migrate
type Migrator interface {
	Up() error
	Close() (error, error)
}

// MigrationEngine фабрика мигратора, в тестах подменяется моком
type MigrationEngine func(databaseURL string) (Migrator, error)

type Migration struct {
	databaseURL string
	engine      MigrationEngine
}

func NewMigration(databaseURL string, engine MigrationEngine) *Migration {
	if engine == nil {
		engine = DefaultEngine
	}
	return &Migration{
		databaseURL: databaseURL,
		engine:      engine,
	}
}

// DefaultEngine берет миграции, встроенные в бинарник
func DefaultEngine(databaseURL string) (Migrator, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	return migrate.NewWithSourceInstance("iofs", src, databaseURL)
}

func (mg *Migration) Up() (err error) {
	m, err := mg.engine(mg.databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		serr, dberr := m.Close()
		if serr != nil {
			err = errors.Join(err, fmt.Errorf("migration source error: %w", serr))
		}
		if dberr != nil {
			err = errors.Join(err, fmt.Errorf("migration database error: %w", dberr))
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}
	return nil
}
