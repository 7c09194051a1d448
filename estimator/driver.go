package estimator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/absmach/cohort/pkg/codec"
	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/nn"
	"github.com/absmach/cohort/pkg/session"
	"github.com/absmach/cohort/pkg/trainer"
)

// Names of the shards and config entries sent to workers.
const (
	DatasetTrain = "dataset_train"
	DatasetValid = "dataset_valid"

	configLabel  = "label"
	configEpochs = "epochs"
	configModule = codec.KeyParams
	resultProbs  = "ret"
)

const threshold = 0.5

// Driver is the estimator users interact with. Fitting dispatches one
// Worker per rank through a trainer and merges rank 0's final state back;
// prediction runs on every rank and concatenates the shards in rank order.
//
// Calls on one Driver are serialized.
type Driver struct {
	*core
	conf Config

	reporter   session.Reporter
	newTrainer func(trainer.Config) (trainer.Trainer, error)
	trainer    trainer.Trainer
	reinit     bool
	label      string

	mu       sync.Mutex
	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

type Option func(*Driver)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithTrainer injects an already constructed trainer.
func WithTrainer(t trainer.Trainer) Option {
	return func(d *Driver) {
		d.trainer = t
	}
}

// WithReporter sets the reporter of trainers built by the driver.
func WithReporter(r session.Reporter) Option {
	return func(d *Driver) {
		d.reporter = r
	}
}

// WithTrainerFactory replaces the constructor used when the driver builds
// or rebuilds its trainer.
func WithTrainerFactory(f func(trainer.Config) (trainer.Trainer, error)) Option {
	return func(d *Driver) {
		d.newTrainer = f
	}
}

func NewDriver(cfg Config, opts ...Option) (*Driver, error) {
	if cfg.NumWorkers == 0 {
		cfg.NumWorkers = 1
	}
	if cfg.NumWorkers < 0 {
		return nil, fmt.Errorf("%w: num_workers must be positive", pkgerrors.ErrInvalidInput)
	}
	c, err := newCore(cfg.local(), nil)
	if err != nil {
		return nil, err
	}
	d := &Driver{core: c, conf: cfg}
	d.newTrainer = func(tc trainer.Config) (trainer.Trainer, error) {
		return trainer.NewLocal(tc, trainer.WithReporter(d.reporter), trainer.WithLogger(d.logger))
	}
	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

func (d *Driver) Config() Config { return d.conf }

// Label is the label column of the last distributed fit. Prediction
// excludes it from the features when the input carries it.
func (d *Driver) Label() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.label
}

func (d *Driver) SetLabel(label string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.label = label
}

// Trainer returns the current trainer, or nil before the first
// distributed initialization.
func (d *Driver) Trainer() trainer.Trainer {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.trainer
}

// Initialize builds the estimator. With distributed set only the trainer
// is prepared; otherwise the local module, criterion, optimizer and history
// are built.
func (d *Driver) Initialize(ctx context.Context, distributed bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.init(distributed)
}

func (d *Driver) init(distributed bool) error {
	if err := d.initCallbacks(false); err != nil {
		return err
	}
	if distributed {
		if err := d.initTrainer(); err != nil {
			return err
		}
		d.initialized = true

		return nil
	}
	if err := d.initCriterion(); err != nil {
		return err
	}
	m, err := d.newModule()
	if err != nil {
		return err
	}
	d.module = m
	if err := d.initOptimizer(); err != nil {
		return err
	}
	d.initHistory()
	d.ResetIterators()
	d.initialized = true

	return nil
}

// SetParam updates an optimizer hyperparameter ("lr" or "momentum")
// without rebuilding the optimizer.
func (d *Driver) SetParam(name string, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch name {
	case "lr":
		if value <= 0 {
			return fmt.Errorf("%w: learning rate must be positive", pkgerrors.ErrInvalidInput)
		}
		d.conf.LR = value
		d.cfg.LR = value
	case "momentum":
		d.conf.Momentum = value
		d.cfg.Momentum = value
	default:
		return fmt.Errorf("%w: unknown parameter %q", pkgerrors.ErrInvalidInput, name)
	}
	if d.optimizer != nil {
		return d.optimizer.SetParam(name, value)
	}

	return nil
}

// SetTrainerConfig replaces the trainer configuration. The trainer is
// rebuilt on the next distributed initialization.
func (d *Driver) SetTrainerConfig(tc trainer.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.conf.Trainer = tc
	d.reinit = true
}

func (d *Driver) initTrainer() error {
	t := d.trainer
	if t == nil || d.reinit {
		tc := d.conf.Trainer
		if tc.Backend == "" {
			tc.Backend = trainer.BackendDDP
		}
		if tc.NumWorkers == 0 {
			tc.NumWorkers = d.conf.NumWorkers
		}
		if !tc.UseGPU {
			dev, _ := nn.ParseDevice(d.cfg.Device)
			tc.UseGPU = dev.IsCUDA()
		}
		if d.conf.Verbose && (t != nil || d.initialized) {
			d.logger.Info("re-initializing trainer", slog.String("backend", tc.Backend), slog.Int("workers", tc.NumWorkers), slog.Bool("use_gpu", tc.UseGPU))
		}
		nt, err := d.newTrainer(tc)
		if err != nil {
			return fmt.Errorf("failed to create trainer: %w", err)
		}
		t = nt
		d.reinit = false
	}
	if b := t.Backend(); b != trainer.BackendDDP {
		return fmt.Errorf("%w: got %q", pkgerrors.ErrUnsupportedBackend, b)
	}
	d.trainer = t

	return nil
}

// Fit initializes the estimator unless warm starting and trains it on x.
func (d *Driver) Fit(ctx context.Context, x *dataset.Table, y string, opts ...FitOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.fit(ctx, d, x, y, opts)
}

// PartialFit trains on x without re-initializing. Interruption ends the
// run early without an error.
func (d *Driver) PartialFit(ctx context.Context, x *dataset.Table, y string, opts ...FitOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.partialFit(ctx, d, x, y, opts)
}

// FitLoop splits the data, runs the epochs on the workers and loads the
// state trained by rank 0.
func (d *Driver) FitLoop(ctx context.Context, x *dataset.Table, y string, opts ...FitOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.fitLoop(ctx, x, y, opts...)
}

// Stop interrupts a running fit.
func (d *Driver) Stop() {
	d.core.Stop()
	d.cancelMu.Lock()
	defer d.cancelMu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Driver) initialize(context.Context) error {
	return d.init(true)
}

func (d *Driver) fitLoop(ctx context.Context, x *dataset.Table, y string, opts ...FitOption) error {
	if err := checkData(x, y); err != nil {
		return err
	}
	if x.Len() == 0 {
		return fmt.Errorf("%w: empty input table", pkgerrors.ErrInvalidInput)
	}
	o := collectFitOptions(d.cfg.MaxEpochs, opts)
	train, valid, err := d.splitDatasets(x, y, o)
	if err != nil {
		return err
	}
	if err := d.checkStop(ctx); err != nil {
		return err
	}
	if d.trainer == nil {
		if err := d.initTrainer(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.setCancel(cancel)
	defer d.setCancel(nil)

	datasets := map[string]*dataset.Table{DatasetTrain: train.X}
	if valid != nil {
		datasets[DatasetValid] = valid.X
	}
	config := map[string]any{configLabel: train.Label, configEpochs: o.epochs}
	wc := Project(d.conf)
	// The split already happened here.
	wc.TrainSplit = nil
	fn := trainFunc(wc, d.usingGPU(), d.logger)

	var results []trainer.Result
	err = trainer.Scope(ctx, d.trainer, d.conf.InitHook, func(ctx context.Context) error {
		var err error
		results, err = d.trainer.Run(ctx, fn, config, datasets)

		return err
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: no results", pkgerrors.ErrWorkerFailed)
	}

	if err := d.init(false); err != nil {
		return err
	}
	b, err := codec.BundleFromResult(results[0])
	if err != nil {
		return err
	}
	if err := d.core.LoadState(b); err != nil {
		return err
	}
	d.label = train.Label

	return nil
}

func (d *Driver) setCancel(cancel context.CancelFunc) {
	d.cancelMu.Lock()
	defer d.cancelMu.Unlock()
	d.cancel = cancel
}

func (d *Driver) usingGPU() bool {
	return d.cfg.Device == nn.CUDA && nn.CUDAAvailable()
}

// trainFunc builds the per-worker training function. Every rank fits a
// fresh Worker on its shards; only rank 0 returns its state.
func trainFunc(wc WorkerConfig, gpu bool, logger *slog.Logger) trainer.Func {
	return func(ctx context.Context, config map[string]any) (trainer.Result, error) {
		s, err := session.FromContext(ctx)
		if err != nil {
			return nil, err
		}
		label, _ := config[configLabel].(string)
		epochs, ok := config[configEpochs].(int)
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", pkgerrors.ErrInvalidInput, configEpochs)
		}
		train, err := session.DatasetShard(ctx, DatasetTrain)
		if err != nil {
			return nil, err
		}
		valid, err := session.DatasetShard(ctx, DatasetValid)
		if err != nil && !errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, err
		}

		cfg := wc
		if gpu {
			cfg.Device = nn.CUDADevice(s.LocalRank())
		}
		est, err := NewWorker(cfg, WithWorkerLogger(logger.With(slog.Int("ml.rank", s.WorldRank()))))
		if err != nil {
			return nil, err
		}
		if err := est.Fit(ctx, train, label, WithEpochs(epochs), WithValidation(valid, "")); err != nil {
			return nil, err
		}
		if s.WorldRank() != 0 {
			return trainer.Result{}, nil
		}
		if gpu {
			est.module.To(nn.CUDA)
		}
		b, err := est.SaveState()
		if err != nil {
			return nil, err
		}

		return trainer.Result(b.Result()), nil
	}
}

// PredictProba returns one row per input row holding the probability of
// the positive class. Every worker predicts its own shard.
func (d *Driver) PredictProba(ctx context.Context, x *dataset.Table) ([][]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.predictProbaDistributed(ctx, x)
}

// Predict thresholds PredictProba at 0.5.
func (d *Driver) Predict(ctx context.Context, x *dataset.Table) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	probs, err := d.predictProbaDistributed(ctx, x)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(probs))
	for i, p := range probs {
		if p[0] > threshold {
			out[i] = 1
		}
	}

	return out, nil
}

func (d *Driver) predictProbaDistributed(ctx context.Context, x *dataset.Table) ([][]float64, error) {
	if x == nil {
		return nil, fmt.Errorf("%w: nil input table", pkgerrors.ErrInvalidInput)
	}
	if !d.initialized || d.module == nil || !d.module.Built() {
		return nil, pkgerrors.ErrNotInitialized
	}
	label := ""
	if d.label != "" && x.Index(d.label) >= 0 {
		label = d.label
	}
	b, err := d.core.SaveState()
	if err != nil {
		return nil, err
	}
	config := b.Without(codec.KeyParams).Result()
	config[configModule] = d.module
	config[configLabel] = label
	if d.trainer == nil {
		if err := d.initTrainer(); err != nil {
			return nil, err
		}
	}
	fn := predictFunc(d.conf, d.logger)

	var results []trainer.Result
	err = trainer.Scope(ctx, d.trainer, d.conf.InitHook, func(ctx context.Context) error {
		var err error
		results, err = d.trainer.Run(ctx, fn, config, map[string]*dataset.Table{session.DefaultDataset: x})

		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([][]float64, 0, x.Len())
	for rank, res := range results {
		probs, ok := res[resultProbs].([]float64)
		if !ok {
			return nil, fmt.Errorf("%w: rank %d returned no predictions", pkgerrors.ErrWorkerFailed, rank)
		}
		for _, p := range probs {
			out = append(out, []float64{p})
		}
	}

	return out, nil
}

// predictFunc rebuilds a local estimator on each worker from the driver's
// state and in-memory module and predicts the worker's shard.
func predictFunc(conf Config, logger *slog.Logger) trainer.Func {
	return func(ctx context.Context, config map[string]any) (trainer.Result, error) {
		module, ok := config[configModule].(nn.Module)
		if !ok {
			return nil, fmt.Errorf("%w: missing module", pkgerrors.ErrInvalidInput)
		}
		label, _ := config[configLabel].(string)
		delete(config, configModule)
		delete(config, configLabel)
		b, err := codec.BundleFromResult(config)
		if err != nil {
			return nil, err
		}

		est, err := NewDriver(conf, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if err := est.init(false); err != nil {
			return nil, err
		}
		s, err := codec.Decode(est.codec, b)
		if err != nil {
			return nil, err
		}
		if err := est.install(nn.Unwrap(module).Clone(), s); err != nil {
			return nil, err
		}

		shard, err := session.DatasetShard(ctx, "")
		if err != nil {
			return nil, err
		}
		ds, err := est.cfg.Dataset(shard, label)
		if err != nil {
			return nil, err
		}
		probs, err := est.predictProba(ds)
		if err != nil {
			return nil, err
		}

		return trainer.Result{resultProbs: probs}, nil
	}
}

// SaveState serializes the estimator into a bundle.
func (d *Driver) SaveState() (codec.Bundle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.core.SaveState()
}

// LoadState restores a bundle produced by SaveState.
func (d *Driver) LoadState(b codec.Bundle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.core.LoadState(b)
}
