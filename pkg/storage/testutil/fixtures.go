package testutil

import (
	"encoding/json"
	"time"

	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/pkg/session"
)

func TestModel(id string) model.Model {
	now := time.Now().UTC().Truncate(time.Microsecond)

	return model.Model{
		ID:        id,
		Name:      "test-model-" + id,
		Label:     "y",
		Features:  []string{"a", "b"},
		Workers:   2,
		Status:    model.StatusFitted,
		Config:    json.RawMessage(`{"max_epochs":3}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestReport(modelID string, rank, epoch int) model.Report {
	return model.Report{
		ModelID: modelID,
		Rank:    rank,
		Epoch:   epoch,
		Metrics: []session.Metric{
			{Key: "epoch", Value: float64(epoch)},
			{Key: "train_loss", Value: 0.5},
			{Key: "dur", Value: 0.01},
		},
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
	}
}
