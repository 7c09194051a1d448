package estimator

import (
	"context"
	"log/slog"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/nn"
	"github.com/absmach/cohort/pkg/session"
)

var _ Trainable = (*Worker)(nil)

// Worker is the estimator that runs inside a worker session. It trains on
// the session's shard and averages gradients with its peers through the
// session reducer.
type Worker struct {
	*core
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func NewWorker(cfg WorkerConfig, opts ...WorkerOption) (*Worker, error) {
	c, err := newCore(cfg, nil)
	if err != nil {
		return nil, err
	}
	w := &Worker{core: c}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Initialize builds every component for the current session. The module is
// wrapped for gradient averaging and pinned to the local rank's device when
// it runs on CUDA.
func (w *Worker) Initialize(ctx context.Context) error {
	s, err := session.FromContext(ctx)
	if err != nil {
		return err
	}
	w.rank = s.WorldRank()
	w.reducer = s.Reducer()

	if err := w.initCallbacks(true); err != nil {
		return err
	}
	if err := w.initCriterion(); err != nil {
		return err
	}
	m, err := w.newModule()
	if err != nil {
		return err
	}
	var deviceIDs []int
	if dev, err := nn.ParseDevice(w.cfg.Device); err == nil && dev.IsCUDA() && nn.CUDAAvailable() {
		deviceIDs = []int{s.LocalRank()}
	}
	w.module = nn.NewDistributed(m, w.reducer, w.rank, deviceIDs)
	if err := w.initOptimizer(); err != nil {
		return err
	}
	w.initHistory()
	w.ResetIterators()
	w.initialized = true

	return nil
}

func (w *Worker) Fit(ctx context.Context, x *dataset.Table, y string, opts ...FitOption) error {
	return w.fit(ctx, w, x, y, opts)
}

func (w *Worker) PartialFit(ctx context.Context, x *dataset.Table, y string, opts ...FitOption) error {
	return w.partialFit(ctx, w, x, y, opts)
}

// FitLoop runs the epochs over x. It must be called inside a session.
func (w *Worker) FitLoop(ctx context.Context, x *dataset.Table, y string, opts ...FitOption) error {
	return w.fitLoop(ctx, x, y, opts...)
}

// PredictProba returns the probability of the positive class per row.
func (w *Worker) PredictProba(x *dataset.Table, label string) ([]float64, error) {
	ds, err := w.cfg.Dataset(x, label)
	if err != nil {
		return nil, err
	}

	return w.predictProba(ds)
}

func (w *Worker) initialize(ctx context.Context) error {
	return w.Initialize(ctx)
}

func (w *Worker) fitLoop(ctx context.Context, x *dataset.Table, y string, opts ...FitOption) error {
	if !session.InSession(ctx) {
		return pkgerrors.ErrNoSession
	}
	if !w.initialized {
		return pkgerrors.ErrNotInitialized
	}
	if err := checkData(x, y); err != nil {
		return err
	}
	o := collectFitOptions(w.cfg.MaxEpochs, opts)
	train, valid, err := w.splitDatasets(x, y, o)
	if err != nil {
		return err
	}

	return w.runEpochs(ctx, train, valid, o.epochs)
}
