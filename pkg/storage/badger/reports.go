package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/model"
)

const reportPrefix = "report:"

type reportRepo struct {
	db *Database
}

func NewReportRepository(db *Database) ReportRepository {
	return &reportRepo{db: db}
}

// Reports are keyed by model, arrival time and rank so a prefix scan yields
// them in the order they were received.
func reportKey(r model.Report) []byte {
	return fmt.Appendf(nil, "%s%s:%020d:%06d", reportPrefix, r.ModelID, r.Timestamp.UnixNano(), r.Rank)
}

func (r *reportRepo) Append(_ context.Context, rep model.Report) error {
	if rep.ModelID == "" {
		return errors.ErrEmptyKey
	}
	if rep.Timestamp.IsZero() {
		rep.Timestamp = time.Now().UTC()
	}
	val, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.set(reportKey(rep), val)
}

func (r *reportRepo) List(_ context.Context, modelID string) ([]model.Report, error) {
	values, err := r.db.listWithPrefix([]byte(reportPrefix+modelID+":"), 0, 0)
	if err != nil {
		return nil, err
	}
	reports := make([]model.Report, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &reports[i]); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return reports, nil
}

func (r *reportRepo) DeleteByModel(_ context.Context, modelID string) error {
	return r.db.deletePrefix([]byte(reportPrefix + modelID + ":"))
}
