package estimator

import (
	"fmt"

	"github.com/absmach/cohort/pkg/codec"
	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/nn"
	"github.com/absmach/cohort/pkg/trainer"
)

const (
	defaultLR        = 0.01
	defaultMaxEpochs = 10
	defaultBatchSize = 128
	defaultSplit     = 0.2
)

// WorkerConfig holds everything a worker estimator needs to train a shard.
type WorkerConfig struct {
	Module        nn.Spec
	Criterion     string
	Optimizer     string
	LR            float64
	Momentum      float64
	MaxEpochs     int
	BatchSize     int
	IteratorTrain dataset.IteratorConfig
	IteratorValid dataset.IteratorConfig
	Dataset       dataset.Func
	TrainSplit    dataset.Splitter
	Callbacks     []Registration
	WarmStart     bool
	Verbose       bool
	Device        string
	Codec         string
}

// Config is the driver configuration. WorkerDataset is the dataset
// constructor used on workers; NumWorkers, Trainer and InitHook only make
// sense on the driver and are never sent to workers.
type Config struct {
	Module        nn.Spec
	Criterion     string
	Optimizer     string
	LR            float64
	Momentum      float64
	MaxEpochs     int
	BatchSize     int
	IteratorTrain dataset.IteratorConfig
	IteratorValid dataset.IteratorConfig
	Dataset       dataset.Func
	WorkerDataset dataset.Func
	TrainSplit    dataset.Splitter
	Callbacks     []Registration
	WarmStart     bool
	Verbose       bool
	Device        string
	Codec         string

	NumWorkers int
	Trainer    trainer.Config
	InitHook   trainer.InitHook
}

func DefaultConfig() Config {
	return Config{
		Criterion:  nn.BCE,
		Optimizer:  nn.SGD,
		LR:         defaultLR,
		MaxEpochs:  defaultMaxEpochs,
		BatchSize:  defaultBatchSize,
		Dataset:    dataset.New,
		TrainSplit: dataset.FixedSplit(defaultSplit),
		Device:     nn.CPU,
		Codec:      codec.NameCBOR,
		NumWorkers: 1,
		Trainer:    trainer.Config{Backend: trainer.BackendDDP},
	}
}

// local is the configuration the driver itself trains and predicts with.
func (c Config) local() WorkerConfig {
	return WorkerConfig{
		Module:        c.Module,
		Criterion:     c.Criterion,
		Optimizer:     c.Optimizer,
		LR:            c.LR,
		Momentum:      c.Momentum,
		MaxEpochs:     c.MaxEpochs,
		BatchSize:     c.BatchSize,
		IteratorTrain: c.IteratorTrain,
		IteratorValid: c.IteratorValid,
		Dataset:       c.Dataset,
		TrainSplit:    c.TrainSplit,
		Callbacks:     c.Callbacks,
		WarmStart:     c.WarmStart,
		Verbose:       c.Verbose,
		Device:        c.Device,
		Codec:         c.Codec,
	}
}

// Project derives the worker configuration from a driver configuration.
// Driver-only fields are dropped and Dataset is rebound to WorkerDataset.
func Project(c Config) WorkerConfig {
	wc := c.local()
	if c.WorkerDataset != nil {
		wc.Dataset = c.WorkerDataset
	}

	return wc
}

func (c WorkerConfig) validate() error {
	if c.MaxEpochs < 0 {
		return fmt.Errorf("%w: max_epochs must not be negative", pkgerrors.ErrInvalidInput)
	}
	if c.BatchSize == 0 || c.BatchSize < -1 {
		return fmt.Errorf("%w: batch_size must be positive or -1", pkgerrors.ErrInvalidInput)
	}
	if _, err := nn.ParseDevice(c.Device); err != nil {
		return err
	}
	if _, err := codec.New(c.Codec); err != nil {
		return err
	}

	return nil
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Dataset == nil {
		c.Dataset = dataset.New
	}
	if c.LR == 0 {
		c.LR = defaultLR
	}
	if c.Device == "" {
		c.Device = nn.CPU
	}

	return c
}
