package badger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/model"
)

const modelPrefix = "model:"

type modelRepo struct {
	db *Database
}

func NewModelRepository(db *Database) ModelRepository {
	return &modelRepo{db: db}
}

func (r *modelRepo) Create(_ context.Context, m model.Model) error {
	if m.ID == "" {
		return errors.ErrEmptyKey
	}
	val, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.create([]byte(modelPrefix+m.ID), val)
}

func (r *modelRepo) Get(_ context.Context, id string) (model.Model, error) {
	if id == "" {
		return model.Model{}, errors.ErrEmptyKey
	}
	val, err := r.db.get([]byte(modelPrefix + id))
	if err != nil {
		return model.Model{}, err
	}
	var m model.Model
	if err := json.Unmarshal(val, &m); err != nil {
		return model.Model{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return m, nil
}

func (r *modelRepo) Update(_ context.Context, m model.Model) error {
	if m.ID == "" {
		return errors.ErrEmptyKey
	}
	val, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.replace([]byte(modelPrefix+m.ID), val)
}

// List returns models in ID order.
func (r *modelRepo) List(_ context.Context, offset, limit uint64) ([]model.Model, uint64, error) {
	prefix := []byte(modelPrefix)
	total, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	if limit == 0 {
		return []model.Model{}, total, nil
	}
	values, err := r.db.listWithPrefix(prefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	models := make([]model.Model, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &models[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return models, total, nil
}

func (r *modelRepo) Delete(_ context.Context, id string) error {
	if id == "" {
		return errors.ErrEmptyKey
	}

	return r.db.delete([]byte(modelPrefix + id))
}
