package cohort_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/cohort"
	"github.com/absmach/cohort/pkg/codec"
	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/nn"
	"github.com/absmach/cohort/pkg/trainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const experiment = `
[estimator]
optimizer = "adam"
lr = 0.05
max_epochs = 4
batch_size = 16
valid_split = 0.25
codec = "msgpack"

[estimator.module]
hidden = [8, 4]
seed = 3

[trainer]
num_workers = 3

[mqtt]
url = "tcp://localhost:1883"
topic_prefix = "lab"

[registry]
dir = "/tmp/models"

[storage]
type = "sqlite"
sqlite_path = "/tmp/cohort.db"
`

func TestParseConfig(t *testing.T) {
	t.Parallel()

	cfg, err := cohort.ParseConfig([]byte(experiment))
	require.NoError(t, err)

	assert.Equal(t, []int{8, 4}, cfg.Estimator.Module.Hidden)
	assert.Equal(t, int64(3), cfg.Estimator.Module.Seed)
	assert.Equal(t, nn.Adam, cfg.Estimator.Optimizer)
	assert.Equal(t, 3, cfg.Trainer.NumWorkers)
	assert.Equal(t, "lab", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "/tmp/models", cfg.Registry.Dir)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "/tmp/cohort.db", cfg.Storage.SQLitePath)
}

func TestParseConfigInvalid(t *testing.T) {
	t.Parallel()

	_, err := cohort.ParseConfig([]byte("[estimator\nlr = "))
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := cohort.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "exp.toml")
	require.NoError(t, os.WriteFile(path, []byte(experiment), 0o644))

	cfg, err := cohort.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Estimator.MaxEpochs)
}

func TestBuild(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc  string
		ec    cohort.EstimatorConfig
		tc    cohort.TrainerConfig
		check func(t *testing.T, ec cohort.EstimatorConfig, tc cohort.TrainerConfig)
	}{
		{
			desc: "defaults",
			check: func(t *testing.T, ec cohort.EstimatorConfig, tc cohort.TrainerConfig) {
				cfg := ec.Build(tc)
				assert.Equal(t, nn.BCE, cfg.Criterion)
				assert.Equal(t, nn.SGD, cfg.Optimizer)
				assert.Equal(t, 0.01, cfg.LR)
				assert.Equal(t, 10, cfg.MaxEpochs)
				assert.Equal(t, 128, cfg.BatchSize)
				assert.Equal(t, 1, cfg.NumWorkers)
				assert.Equal(t, codec.NameCBOR, cfg.Codec)
				assert.Equal(t, trainer.BackendDDP, cfg.Trainer.Backend)
				assert.NotNil(t, cfg.TrainSplit)
			},
		},
		{
			desc: "overrides",
			ec:   cohort.EstimatorConfig{Optimizer: nn.Adam, LR: 0.5, MaxEpochs: 2, BatchSize: -1, Codec: codec.NameMsgpack},
			tc:   cohort.TrainerConfig{Backend: "horovod", NumWorkers: 4},
			check: func(t *testing.T, ec cohort.EstimatorConfig, tc cohort.TrainerConfig) {
				cfg := ec.Build(tc)
				assert.Equal(t, nn.Adam, cfg.Optimizer)
				assert.Equal(t, 0.5, cfg.LR)
				assert.Equal(t, 2, cfg.MaxEpochs)
				assert.Equal(t, -1, cfg.BatchSize)
				assert.Equal(t, 4, cfg.NumWorkers)
				assert.Equal(t, codec.NameMsgpack, cfg.Codec)
				assert.Equal(t, "horovod", cfg.Trainer.Backend)
			},
		},
		{
			desc: "no split",
			ec:   cohort.EstimatorConfig{NoSplit: true, ValidSplit: 0.3},
			check: func(t *testing.T, ec cohort.EstimatorConfig, tc cohort.TrainerConfig) {
				assert.Nil(t, ec.Build(tc).TrainSplit)
			},
		},
		{
			desc: "valid split",
			ec:   cohort.EstimatorConfig{ValidSplit: 0.5},
			check: func(t *testing.T, ec cohort.EstimatorConfig, tc cohort.TrainerConfig) {
				assert.Equal(t, dataset.FixedSplit(0.5), ec.Build(tc).TrainSplit)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			tc.check(t, tc.ec, tc.tc)
		})
	}
}

func TestNewManifest(t *testing.T) {
	t.Parallel()

	x, err := dataset.NewTable([]string{"a", "y", "b"}, [][]float64{{1, 0, 2}})
	require.NoError(t, err)

	m, err := cohort.NewManifest("churn", "y", x, cohort.EstimatorConfig{Codec: codec.NameMsgpack}, cohort.TrainerConfig{NumWorkers: 2})
	require.NoError(t, err)
	assert.Equal(t, "churn", m.Name)
	assert.Equal(t, []string{"a", "b"}, m.Features)
	assert.Equal(t, codec.NameMsgpack, m.Codec)
	assert.JSONEq(t, `{"num_workers":2}`, string(m.Trainer))
	assert.False(t, m.CreatedAt.IsZero())
}
