package coordinator

import (
	"context"

	"github.com/absmach/cohort"
	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/model"
)

// FitRequest describes one training run. An empty Name gets a generated one.
type FitRequest struct {
	Name      string                 `json:"name,omitempty"`
	Estimator cohort.EstimatorConfig `json:"estimator"`
	Trainer   cohort.TrainerConfig   `json:"trainer"`
	Label     string                 `json:"label"`
	Epochs    int                    `json:"epochs,omitempty"`
	Data      *dataset.Table         `json:"data"`
}

type Service interface {
	// Fit trains a model on the request data and blocks until the fit ends.
	Fit(ctx context.Context, req FitRequest) (model.Model, error)
	GetModel(ctx context.Context, id string) (model.Model, error)
	ListModels(ctx context.Context, offset, limit uint64) (model.ModelsPage, error)
	DeleteModel(ctx context.Context, id string) error
	// StopFit asks a running fit to end at the next batch boundary. The
	// model keeps the epochs completed so far.
	StopFit(ctx context.Context, id string) error

	PredictProba(ctx context.Context, id string, x *dataset.Table) ([][]float64, error)
	Predict(ctx context.Context, id string, x *dataset.Table) ([]int, error)
	Reports(ctx context.Context, id string) ([]model.Report, error)

	// Subscribe listens for remote stop requests on the broker.
	Subscribe(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
