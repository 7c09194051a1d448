package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/cohort/pkg/model"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
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

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	// A single connection serializes writers; sqlite locks the whole file.
	db.SetMaxOpenConns(1)
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
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL,
						label TEXT NOT NULL,
						features TEXT,
						workers INTEGER NOT NULL DEFAULT 1,
						status TEXT NOT NULL,
						error TEXT NOT NULL DEFAULT '',
						config TEXT,
						created_at TIMESTAMP NOT NULL,
						updated_at TIMESTAMP NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_models_created_at ON models(created_at DESC)`,
					`CREATE TABLE IF NOT EXISTS reports (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						model_id TEXT NOT NULL,
						rank INTEGER NOT NULL,
						epoch INTEGER NOT NULL,
						metrics TEXT NOT NULL,
						timestamp TIMESTAMP NOT NULL
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

	if _, err := migrate.Exec(db.DB.DB, "sqlite3", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
