package cohort

import (
	"fmt"
	"os"

	"github.com/absmach/cohort/estimator"
	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/nn"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/absmach/cohort/pkg/trainer"
	"github.com/pelletier/go-toml"
)

type Config struct {
	Estimator EstimatorConfig `toml:"estimator"`
	Trainer   TrainerConfig   `toml:"trainer"`
	MQTT      mqtt.Config     `toml:"mqtt"`
	Registry  RegistryConfig  `toml:"registry"`
	Storage   storage.Config  `toml:"storage"`
}

type EstimatorConfig struct {
	Module        nn.Spec                `toml:"module"         json:"module"`
	Criterion     string                 `toml:"criterion"      json:"criterion,omitempty"`
	Optimizer     string                 `toml:"optimizer"      json:"optimizer,omitempty"`
	LR            float64                `toml:"lr"             json:"lr,omitempty"`
	Momentum      float64                `toml:"momentum"       json:"momentum,omitempty"`
	MaxEpochs     int                    `toml:"max_epochs"     json:"max_epochs,omitempty"`
	BatchSize     int                    `toml:"batch_size"     json:"batch_size,omitempty"`
	ValidSplit    float64                `toml:"valid_split"    json:"valid_split,omitempty"`
	NoSplit       bool                   `toml:"no_split"       json:"no_split,omitempty"`
	IteratorTrain dataset.IteratorConfig `toml:"iterator_train" json:"iterator_train"`
	IteratorValid dataset.IteratorConfig `toml:"iterator_valid" json:"iterator_valid"`
	WarmStart     bool                   `toml:"warm_start"     json:"warm_start,omitempty"`
	Verbose       bool                   `toml:"verbose"        json:"verbose,omitempty"`
	Device        string                 `toml:"device"         json:"device,omitempty"`
	Codec         string                 `toml:"codec"          json:"codec,omitempty"`
}

type TrainerConfig struct {
	Backend    string `toml:"backend"     json:"backend,omitempty"`
	NumWorkers int    `toml:"num_workers" json:"num_workers,omitempty"`
	UseGPU     bool   `toml:"use_gpu"     json:"use_gpu,omitempty"`
}

type RegistryConfig struct {
	Dir string `toml:"dir"`
}

// Build overlays the non-zero fields of c on estimator.DefaultConfig.
func (c EstimatorConfig) Build(t TrainerConfig) estimator.Config {
	cfg := estimator.DefaultConfig()
	cfg.Module = c.Module
	if c.Criterion != "" {
		cfg.Criterion = c.Criterion
	}
	if c.Optimizer != "" {
		cfg.Optimizer = c.Optimizer
	}
	if c.LR != 0 {
		cfg.LR = c.LR
	}
	cfg.Momentum = c.Momentum
	if c.MaxEpochs != 0 {
		cfg.MaxEpochs = c.MaxEpochs
	}
	if c.BatchSize != 0 {
		cfg.BatchSize = c.BatchSize
	}
	switch {
	case c.NoSplit:
		cfg.TrainSplit = nil
	case c.ValidSplit != 0:
		cfg.TrainSplit = dataset.FixedSplit(c.ValidSplit)
	}
	cfg.IteratorTrain = c.IteratorTrain
	cfg.IteratorValid = c.IteratorValid
	cfg.WarmStart = c.WarmStart
	cfg.Verbose = c.Verbose
	if c.Device != "" {
		cfg.Device = c.Device
	}
	if c.Codec != "" {
		cfg.Codec = c.Codec
	}
	if t.NumWorkers != 0 {
		cfg.NumWorkers = t.NumWorkers
	}
	cfg.Trainer = trainer.Config{Backend: t.Backend, NumWorkers: t.NumWorkers, UseGPU: t.UseGPU}
	if cfg.Trainer.Backend == "" {
		cfg.Trainer.Backend = trainer.BackendDDP
	}

	return cfg
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
