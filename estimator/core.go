package estimator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/absmach/cohort/pkg/codec"
	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/history"
	"github.com/absmach/cohort/pkg/nn"
	"github.com/absmach/cohort/pkg/session"
)

const (
	trainPrefix = "train"
	validPrefix = "valid"
)

// FitOption adjusts a single fit call.
type FitOption func(*fitOptions)

type fitOptions struct {
	epochs int
	xVal   *dataset.Table
	yVal   string
	hasVal bool
}

// WithEpochs overrides MaxEpochs for one call.
func WithEpochs(n int) FitOption {
	return func(o *fitOptions) {
		o.epochs = n
	}
}

// WithValidation supplies explicit validation data instead of splitting.
// An empty label reuses the training label.
func WithValidation(x *dataset.Table, label string) FitOption {
	return func(o *fitOptions) {
		o.xVal = x
		o.yVal = label
		o.hasVal = true
	}
}

func collectFitOptions(maxEpochs int, opts []FitOption) fitOptions {
	o := fitOptions{epochs: -1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.epochs < 0 {
		o.epochs = maxEpochs
	}

	return o
}

// variant is the part of the lifecycle the driver and the worker implement
// differently.
type variant interface {
	initialize(ctx context.Context) error
	fitLoop(ctx context.Context, x *dataset.Table, y string, opts ...FitOption) error
}

// core is the training machinery shared by the driver and worker
// estimators.
type core struct {
	cfg    WorkerConfig
	codec  codec.Codec
	logger *slog.Logger

	module    nn.Module
	criterion nn.Criterion
	optimizer nn.Optimizer
	history   history.History
	callbacks *callbackSet

	initialized bool
	stop        atomic.Bool

	iterTrain *dataset.Iterator
	iterValid *dataset.Iterator

	// Set on workers only.
	reducer session.Reducer
	rank    int
}

func newCore(cfg WorkerConfig, logger *slog.Logger) (*core, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c, err := codec.New(cfg.Codec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &core{cfg: cfg, codec: c, logger: logger}, nil
}

func (c *core) History() history.History { return c.history }

func (c *core) Module() nn.Module { return c.module }

func (c *core) Optimizer() nn.Optimizer { return c.optimizer }

func (c *core) Criterion() nn.Criterion { return c.criterion }

func (c *core) Stop() { c.stop.Store(true) }

func (c *core) Initialized() bool { return c.initialized }

// CallbackNames lists the active callbacks in dispatch order.
func (c *core) CallbackNames() []string {
	if c.callbacks == nil {
		return nil
	}

	return c.callbacks.Names()
}

func (c *core) initCallbacks(worker bool) error {
	set, err := resolveCallbacks(c.cfg.Callbacks, c.logger, worker, c.rank)
	if err != nil {
		return err
	}
	c.callbacks = set

	return nil
}

func (c *core) initCriterion() error {
	crit, err := nn.NewCriterion(c.cfg.Criterion)
	if err != nil {
		return err
	}
	c.criterion = crit

	return nil
}

func (c *core) newModule() (nn.Module, error) {
	m, err := nn.NewMLP(c.cfg.Module)
	if err != nil {
		return nil, err
	}
	m.To(c.cfg.Device)

	return m, nil
}

func (c *core) initOptimizer() error {
	opt, err := nn.NewOptimizer(c.cfg.Optimizer, c.cfg.LR, c.cfg.Momentum)
	if err != nil {
		return err
	}
	c.optimizer = opt

	return nil
}

func (c *core) initHistory() {
	c.history = history.History{}
}

// initLocal builds every component for single-process use.
func (c *core) initLocal() error {
	if err := c.initCallbacks(false); err != nil {
		return err
	}
	if err := c.initCriterion(); err != nil {
		return err
	}
	m, err := c.newModule()
	if err != nil {
		return err
	}
	c.module = m
	if err := c.initOptimizer(); err != nil {
		return err
	}
	c.initHistory()
	c.ResetIterators()

	return nil
}

// ResetIterators drops the cached per-mode iterators.
func (c *core) ResetIterators() {
	c.iterTrain = nil
	c.iterValid = nil
}

func (c *core) iterator(ds *dataset.Dataset, training bool) *dataset.Iterator {
	cached, icfg := &c.iterValid, c.cfg.IteratorValid
	if training {
		cached, icfg = &c.iterTrain, c.cfg.IteratorTrain
	}
	if *cached == nil || (*cached).Dataset() != ds {
		*cached = dataset.NewIterator(ds, c.cfg.BatchSize, icfg)
	}

	return *cached
}

func (c *core) fit(ctx context.Context, v variant, x *dataset.Table, y string, opts []FitOption) error {
	if !c.cfg.WarmStart || !c.initialized {
		if err := v.initialize(ctx); err != nil {
			return err
		}
	}

	return c.partialFit(ctx, v, x, y, opts)
}

func (c *core) partialFit(ctx context.Context, v variant, x *dataset.Table, y string, opts []FitOption) error {
	if !c.initialized {
		if err := v.initialize(ctx); err != nil {
			return err
		}
	}
	c.stop.Store(false)

	if err := c.notifyTrainBegin(ctx); err != nil {
		return err
	}
	if err := v.fitLoop(ctx, x, y, opts...); err != nil {
		if !errors.Is(err, pkgerrors.ErrInterrupted) {
			return err
		}
		c.logger.Warn("training interrupted", slog.Int("epochs", len(c.history)))
	}

	return c.notifyTrainEnd(ctx)
}

func checkData(x *dataset.Table, y string) error {
	if x == nil {
		return fmt.Errorf("%w: nil input table", pkgerrors.ErrInvalidInput)
	}
	if y == "" {
		return fmt.Errorf("%w: training requires a label column", pkgerrors.ErrInvalidInput)
	}

	return nil
}

// splitDatasets returns the train and validation datasets of a fit call.
// Explicit validation data wins over the configured split.
func (c *core) splitDatasets(x *dataset.Table, y string, o fitOptions) (*dataset.Dataset, *dataset.Dataset, error) {
	train, err := c.cfg.Dataset(x, y)
	if err != nil {
		return nil, nil, err
	}
	var valid *dataset.Dataset
	switch {
	case o.hasVal && o.xVal != nil:
		yVal := o.yVal
		if yVal == "" {
			yVal = y
		}
		if valid, err = c.cfg.Dataset(o.xVal, yVal); err != nil {
			return nil, nil, err
		}
	case o.hasVal:
		// Validation explicitly disabled.
	case c.cfg.TrainSplit != nil:
		if train, valid, err = c.cfg.TrainSplit.Split(train); err != nil {
			return nil, nil, err
		}
	}
	if valid != nil && train.Label != valid.Label {
		return nil, nil, fmt.Errorf("%w: %q and %q", pkgerrors.ErrLabelMismatch, train.Label, valid.Label)
	}

	return train, valid, nil
}

func (c *core) checkStop(ctx context.Context) error {
	if c.stop.Load() {
		return pkgerrors.ErrInterrupted
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrInterrupted, err)
	}

	return nil
}

func (c *core) runEpochs(ctx context.Context, train, valid *dataset.Dataset, epochs int) error {
	for range epochs {
		if err := c.checkStop(ctx); err != nil {
			return err
		}
		c.history.NewEpoch()
		c.history.Record(epochKey, len(c.history))
		if err := c.notifyEpochBegin(ctx, train, valid); err != nil {
			return err
		}

		if err := c.trainPass(ctx, train); err != nil {
			return err
		}
		if valid != nil {
			if err := c.runSingleEpoch(ctx, valid, false, validPrefix); err != nil {
				return err
			}
		}

		if err := c.notifyEpochEnd(ctx, train, valid); err != nil {
			return err
		}
	}

	return nil
}

// trainPass runs one training pass. On a worker the pass is bracketed by
// the group barrier and a leave so that peers with fewer batches release
// the gradient rounds.
func (c *core) trainPass(ctx context.Context, train *dataset.Dataset) error {
	if c.reducer == nil {
		return c.runSingleEpoch(ctx, train, true, trainPrefix)
	}
	if err := c.reducer.Barrier(ctx, c.rank); err != nil {
		return c.interrupted(ctx, fmt.Errorf("epoch barrier: %w", err))
	}
	defer c.reducer.Leave(c.rank)

	return c.runSingleEpoch(ctx, train, true, trainPrefix)
}

func (c *core) runSingleEpoch(ctx context.Context, ds *dataset.Dataset, training bool, prefix string) error {
	for _, b := range c.iterator(ds, training).Batches() {
		if err := c.checkStop(ctx); err != nil {
			return err
		}
		c.history.NewBatch()
		var (
			loss float64
			err  error
		)
		if training {
			loss, err = c.trainStep(ctx, b)
		} else {
			loss, err = c.validationStep(b)
		}
		if err != nil {
			return c.interrupted(ctx, err)
		}
		c.history.RecordBatch(prefix+"_loss", loss)
		c.history.RecordBatch(prefix+"_batch_size", len(b.X))
		if err := c.notifyBatchEnd(ctx, training); err != nil {
			return err
		}
	}

	return nil
}

// interrupted turns a failure caused by cancellation into ErrInterrupted.
func (c *core) interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil || c.stop.Load() {
		return fmt.Errorf("%w: %w", pkgerrors.ErrInterrupted, err)
	}

	return err
}

func (c *core) trainStep(ctx context.Context, b dataset.Batch) (float64, error) {
	c.module.ZeroGrad()
	p, err := c.module.Forward(b.X)
	if err != nil {
		return 0, err
	}
	loss, grad, err := c.criterion.Loss(p, b.Y)
	if err != nil {
		return 0, err
	}
	if err := c.module.Backward(ctx, grad); err != nil {
		return 0, err
	}
	if err := c.optimizer.Step(c.module.Parameters()); err != nil {
		return 0, err
	}

	return loss, nil
}

func (c *core) validationStep(b dataset.Batch) (float64, error) {
	p, err := c.module.Forward(b.X)
	if err != nil {
		return 0, err
	}
	loss, _, err := c.criterion.Loss(p, b.Y)

	return loss, err
}

// predictProba returns one probability per row of ds, in row order.
func (c *core) predictProba(ds *dataset.Dataset) ([]float64, error) {
	if !c.initialized || c.module == nil {
		return nil, pkgerrors.ErrNotInitialized
	}
	if ds.Len() == 0 {
		return []float64{}, nil
	}
	if !c.module.Built() {
		return nil, fmt.Errorf("%w: module has not been fitted", pkgerrors.ErrNotInitialized)
	}
	it := dataset.NewIterator(ds, c.cfg.BatchSize, dataset.IteratorConfig{})
	out := make([]float64, 0, ds.Len())
	for _, b := range it.Batches() {
		p, err := c.module.Forward(b.X)
		if err != nil {
			return nil, err
		}
		out = append(out, p...)
	}

	return out, nil
}

func (c *core) state() codec.State {
	s := codec.State{History: c.history.Clone()}
	if c.module != nil {
		s.Module = c.module.State()
	}
	if c.optimizer != nil {
		o := c.optimizer.State()
		s.Optimizer = &o
	}
	if c.criterion != nil {
		cr := c.criterion.State()
		s.Criterion = &cr
	}

	return s
}

// SaveState serializes module parameters, optimizer, criterion and history.
func (c *core) SaveState() (codec.Bundle, error) {
	if !c.initialized || c.module == nil {
		return codec.Bundle{}, pkgerrors.ErrNotInitialized
	}

	return codec.Encode(c.codec, c.state())
}

// LoadState restores a bundle carrying all four components. Nothing is
// applied unless every component decodes and loads.
func (c *core) LoadState(b codec.Bundle) error {
	if !c.initialized || c.module == nil {
		return pkgerrors.ErrNotInitialized
	}
	if err := b.Require(codec.Keys...); err != nil {
		return err
	}
	s, err := codec.Decode(c.codec, b)
	if err != nil {
		return err
	}
	m, err := c.newModule()
	if err != nil {
		return err
	}
	if err := m.Load(s.Module); err != nil {
		return fmt.Errorf("%w: %s: %w", pkgerrors.ErrBundleFormat, codec.KeyParams, err)
	}

	return c.install(m, s)
}

// install swaps in a module and the non-parameter parts of s at once.
func (c *core) install(m nn.Module, s codec.State) error {
	if s.Optimizer == nil || s.Criterion == nil || s.History == nil {
		return fmt.Errorf("%w: incomplete state", pkgerrors.ErrBundleFormat)
	}
	opt, err := nn.NewOptimizer(s.Optimizer.Kind, s.Optimizer.LR, s.Optimizer.Momentum)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", pkgerrors.ErrBundleFormat, codec.KeyOptimizer, err)
	}
	if err := opt.Load(*s.Optimizer); err != nil {
		return fmt.Errorf("%w: %s: %w", pkgerrors.ErrBundleFormat, codec.KeyOptimizer, err)
	}
	crit, err := nn.NewCriterion(s.Criterion.Kind)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", pkgerrors.ErrBundleFormat, codec.KeyCriterion, err)
	}
	if err := crit.Load(*s.Criterion); err != nil {
		return fmt.Errorf("%w: %s: %w", pkgerrors.ErrBundleFormat, codec.KeyCriterion, err)
	}

	c.module = m
	c.optimizer = opt
	c.criterion = crit
	c.history = s.History
	c.ResetIterators()

	return nil
}

func (c *core) notifyTrainBegin(ctx context.Context) error {
	for _, h := range c.callbacks.trainBegin {
		if err := h.OnTrainBegin(ctx, c); err != nil {
			return fmt.Errorf("callback on_train_begin: %w", err)
		}
	}

	return nil
}

func (c *core) notifyTrainEnd(ctx context.Context) error {
	for _, h := range c.callbacks.trainEnd {
		if err := h.OnTrainEnd(ctx, c); err != nil {
			return fmt.Errorf("callback on_train_end: %w", err)
		}
	}

	return nil
}

func (c *core) notifyEpochBegin(ctx context.Context, train, valid *dataset.Dataset) error {
	for _, h := range c.callbacks.epochBegin {
		if err := h.OnEpochBegin(ctx, c, train, valid); err != nil {
			return fmt.Errorf("callback on_epoch_begin: %w", err)
		}
	}

	return nil
}

func (c *core) notifyEpochEnd(ctx context.Context, train, valid *dataset.Dataset) error {
	for _, h := range c.callbacks.epochEnd {
		if err := h.OnEpochEnd(ctx, c, train, valid); err != nil {
			return fmt.Errorf("callback on_epoch_end: %w", err)
		}
	}

	return nil
}

func (c *core) notifyBatchEnd(ctx context.Context, training bool) error {
	for _, h := range c.callbacks.batchEnd {
		if err := h.OnBatchEnd(ctx, c, training); err != nil {
			return fmt.Errorf("callback on_batch_end: %w", err)
		}
	}

	return nil
}
