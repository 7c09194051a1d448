package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/model"
)

const modelColumns = `id, name, label, features, workers, status, error, config, created_at, updated_at`

type dbModel struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Label     string    `db:"label"`
	Features  []byte    `db:"features"`
	Workers   int       `db:"workers"`
	Status    string    `db:"status"`
	Error     string    `db:"error"`
	Config    []byte    `db:"config"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func toDBModel(m model.Model) (dbModel, error) {
	features, err := json.Marshal(m.Features)
	if err != nil {
		return dbModel{}, err
	}
	var config []byte
	if len(m.Config) > 0 {
		config = m.Config
	}

	return dbModel{
		ID:        m.ID,
		Name:      m.Name,
		Label:     m.Label,
		Features:  features,
		Workers:   m.Workers,
		Status:    string(m.Status),
		Error:     m.Error,
		Config:    config,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}, nil
}

func (dbm dbModel) toModel() (model.Model, error) {
	m := model.Model{
		ID:        dbm.ID,
		Name:      dbm.Name,
		Label:     dbm.Label,
		Workers:   dbm.Workers,
		Status:    model.Status(dbm.Status),
		Error:     dbm.Error,
		CreatedAt: dbm.CreatedAt,
		UpdatedAt: dbm.UpdatedAt,
	}
	if len(dbm.Features) > 0 {
		if err := json.Unmarshal(dbm.Features, &m.Features); err != nil {
			return model.Model{}, err
		}
	}
	if len(dbm.Config) > 0 {
		m.Config = json.RawMessage(dbm.Config)
	}

	return m, nil
}

type modelRepo struct {
	db *Database
}

func NewModelRepository(db *Database) ModelRepository {
	return &modelRepo{db: db}
}

func (r *modelRepo) Create(ctx context.Context, m model.Model) error {
	if m.ID == "" {
		return pkgerrors.ErrEmptyKey
	}
	dbm, err := toDBModel(m)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}
	query := `INSERT INTO models (` + modelColumns + `)
		VALUES (:id, :name, :label, :features, :workers, :status, :error, :config, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dbm); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return pkgerrors.ErrEntityExists
		}

		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *modelRepo) Get(ctx context.Context, id string) (model.Model, error) {
	if id == "" {
		return model.Model{}, pkgerrors.ErrEmptyKey
	}
	var dbm dbModel
	if err := r.db.GetContext(ctx, &dbm, `SELECT `+modelColumns+` FROM models WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Model{}, pkgerrors.ErrNotFound
		}

		return model.Model{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return dbm.toModel()
}

func (r *modelRepo) Update(ctx context.Context, m model.Model) error {
	if m.ID == "" {
		return pkgerrors.ErrEmptyKey
	}
	dbm, err := toDBModel(m)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}
	query := `UPDATE models SET name = :name, label = :label, features = :features, workers = :workers,
		status = :status, error = :error, config = :config, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, dbm)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}
	if n == 0 {
		return pkgerrors.ErrNotFound
	}

	return nil
}

func (r *modelRepo) List(ctx context.Context, offset, limit uint64) ([]model.Model, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM models`); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	var rows []dbModel
	if err := r.db.SelectContext(
		ctx,
		&rows,
		`SELECT `+modelColumns+` FROM models ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit,
		offset,
	); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	models := make([]model.Model, 0, len(rows))
	for _, row := range rows {
		m, err := row.toModel()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
		}
		models = append(models, m)
	}

	return models, total, nil
}

func (r *modelRepo) Delete(ctx context.Context, id string) error {
	if id == "" {
		return pkgerrors.ErrEmptyKey
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}

	return nil
}
