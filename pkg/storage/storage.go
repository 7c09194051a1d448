package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/pkg/storage/badger"
	"github.com/absmach/cohort/pkg/storage/postgres"
	"github.com/absmach/cohort/pkg/storage/sqlite"
)

var ErrUnsupportedType = errors.New("unsupported storage type")

type Config struct {
	Type string `toml:"type" env:"COHORT_STORAGE_TYPE" envDefault:"memory"`

	PostgresHost    string `toml:"postgres_host"    env:"COHORT_POSTGRES_HOST"    envDefault:"localhost"`
	PostgresPort    string `toml:"postgres_port"    env:"COHORT_POSTGRES_PORT"    envDefault:"5432"`
	PostgresUser    string `toml:"postgres_user"    env:"COHORT_POSTGRES_USER"    envDefault:"cohort"`
	PostgresPass    string `toml:"postgres_pass"    env:"COHORT_POSTGRES_PASS"    envDefault:"cohort"`
	PostgresDB      string `toml:"postgres_db"      env:"COHORT_POSTGRES_DB"      envDefault:"cohort"`
	PostgresSSLMode string `toml:"postgres_sslmode" env:"COHORT_POSTGRES_SSLMODE" envDefault:"disable"`

	SQLitePath string `toml:"sqlite_path" env:"COHORT_SQLITE_PATH" envDefault:"./cohort.db"`

	BadgerPath string `toml:"badger_path" env:"COHORT_BADGER_PATH" envDefault:"./data/badger"`
}

type ModelRepository interface {
	Create(ctx context.Context, m model.Model) error
	Get(ctx context.Context, id string) (model.Model, error)
	Update(ctx context.Context, m model.Model) error
	List(ctx context.Context, offset, limit uint64) ([]model.Model, uint64, error)
	Delete(ctx context.Context, id string) error
}

type ReportRepository interface {
	Append(ctx context.Context, r model.Report) error
	List(ctx context.Context, modelID string) ([]model.Report, error)
	DeleteByModel(ctx context.Context, modelID string) error
}

type Repositories struct {
	Models  ModelRepository
	Reports ReportRepository
	// Closer closes the underlying persistent storage connection.
	// It is nil for the in-memory backend.
	Closer io.Closer
}

func NewRepositories(cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case "postgres":
		return newPostgresRepositories(cfg)
	case "sqlite":
		return newSQLiteRepositories(cfg)
	case "badger":
		return newBadgerRepositories(cfg)
	case "memory", "":
		return NewMemoryRepositories(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

func newPostgresRepositories(cfg Config) (*Repositories, error) {
	db, err := postgres.NewDatabase(
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPass,
		cfg.PostgresDB,
		cfg.PostgresSSLMode,
	)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Models:  postgres.NewModelRepository(db),
		Reports: postgres.NewReportRepository(db),
		Closer:  db,
	}, nil
}

func newSQLiteRepositories(cfg Config) (*Repositories, error) {
	db, err := sqlite.NewDatabase(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Models:  sqlite.NewModelRepository(db),
		Reports: sqlite.NewReportRepository(db),
		Closer:  db,
	}, nil
}

func newBadgerRepositories(cfg Config) (*Repositories, error) {
	db, err := badger.NewDatabase(cfg.BadgerPath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Models:  badger.NewModelRepository(db),
		Reports: badger.NewReportRepository(db),
		Closer:  db,
	}, nil
}
