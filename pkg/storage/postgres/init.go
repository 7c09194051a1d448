package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/cohort/pkg/model"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrMigration    = errors.New("database migration error")
	ErrCreate       = errors.New("create error")
	ErrUpdate       = errors.New("update error")
	ErrDelete       = errors.New("delete error")
)

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

type Database struct {
	*sqlx.DB
}

func NewDatabase(host, port, user, pass, name, sslMode string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", host, port, user, pass, name, sslMode)
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}

	if err := database.Migrate(); err != nil {
		db.Close()

		return nil, err
	}

	return database, nil
}

func (db *Database) Migrate() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_tables",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS models (
						id VARCHAR(36) PRIMARY KEY,
						name VARCHAR(255) NOT NULL,
						label VARCHAR(255) NOT NULL,
						features JSONB,
						workers INTEGER NOT NULL DEFAULT 1,
						status VARCHAR(16) NOT NULL,
						error TEXT NOT NULL DEFAULT '',
						config JSONB,
						created_at TIMESTAMPTZ NOT NULL,
						updated_at TIMESTAMPTZ NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_models_created_at ON models(created_at DESC)`,
					`CREATE TABLE IF NOT EXISTS reports (
						id BIGSERIAL PRIMARY KEY,
						model_id VARCHAR(36) NOT NULL,
						rank INTEGER NOT NULL,
						epoch INTEGER NOT NULL,
						metrics JSONB NOT NULL,
						timestamp TIMESTAMPTZ NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_reports_model_id ON reports(model_id, id)`,
				},
				Down: []string{
					`DROP INDEX IF EXISTS idx_reports_model_id`,
					`DROP TABLE IF EXISTS reports`,
					`DROP INDEX IF EXISTS idx_models_created_at`,
					`DROP TABLE IF EXISTS models`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "postgres", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
