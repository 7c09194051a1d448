package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/pkg/session"
)

type dbReport struct {
	ModelID   string    `db:"model_id"`
	Rank      int       `db:"rank"`
	Epoch     int       `db:"epoch"`
	Metrics   []byte    `db:"metrics"`
	Timestamp time.Time `db:"timestamp"`
}

type reportRepo struct {
	db *Database
}

func NewReportRepository(db *Database) ReportRepository {
	return &reportRepo{db: db}
}

func (r *reportRepo) Append(ctx context.Context, rep model.Report) error {
	if rep.ModelID == "" {
		return pkgerrors.ErrEmptyKey
	}
	if rep.Timestamp.IsZero() {
		rep.Timestamp = time.Now()
	}
	metrics, err := json.Marshal(rep.Metrics)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}
	if _, err := r.db.ExecContext(
		ctx,
		`INSERT INTO reports (model_id, rank, epoch, metrics, timestamp) VALUES (?, ?, ?, ?, ?)`,
		rep.ModelID,
		rep.Rank,
		rep.Epoch,
		metrics,
		rep.Timestamp.UTC(),
	); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *reportRepo) List(ctx context.Context, modelID string) ([]model.Report, error) {
	var rows []dbReport
	if err := r.db.SelectContext(
		ctx,
		&rows,
		`SELECT model_id, rank, epoch, metrics, timestamp FROM reports WHERE model_id = ? ORDER BY id`,
		modelID,
	); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	reports := make([]model.Report, len(rows))
	for i, row := range rows {
		var metrics []session.Metric
		if err := json.Unmarshal(row.Metrics, &metrics); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
		}
		reports[i] = model.Report{
			ModelID:   row.ModelID,
			Rank:      row.Rank,
			Epoch:     row.Epoch,
			Metrics:   metrics,
			Timestamp: row.Timestamp,
		}
	}

	return reports, nil
}

func (r *reportRepo) DeleteByModel(ctx context.Context, modelID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE model_id = ?`, modelID); err != nil {
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}

	return nil
}
