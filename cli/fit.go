package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/cohort"
	"github.com/absmach/cohort/estimator"
	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/history"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/registry"
	"github.com/absmach/cohort/pkg/trainer"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var errMissingFlag = errors.New("missing required flag")

type fitResult struct {
	Name    string         `json:"name"`
	Dir     string         `json:"dir"`
	Workers int            `json:"workers"`
	Epochs  int            `json:"epochs"`
	Last    map[string]any `json:"last,omitempty"`
}

func NewFitCmd() *cobra.Command {
	var (
		configPath, dataPath, label, out, name string
		epochs, workers                        int
	)

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Train a model locally",
		Long: `Train a model on a CSV file with data-parallel workers and save it to a directory.

Examples:
  # Train with two workers and save to ./models/churn
  cohort-cli fit --config exp.toml --data train.csv --label y --name churn --workers 2`,
		Run: func(cmd *cobra.Command, _ []string) {
			if configPath == "" || dataPath == "" || label == "" {
				logErrorCmd(*cmd, fmt.Errorf("%w: --config, --data and --label", errMissingFlag))
				logUsageCmd(*cmd, cmd.UseLine())

				return
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			res, err := runFit(ctx, cmd, fitOptions{
				config:  configPath,
				data:    dataPath,
				label:   label,
				out:     out,
				name:    name,
				epochs:  epochs,
				workers: workers,
			})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, res)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "experiment TOML file")
	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "training CSV file")
	cmd.Flags().StringVarP(&label, "label", "l", "", "label column")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (defaults to <registry dir>/<name>)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "model name (generated when empty)")
	cmd.Flags().IntVarP(&epochs, "epochs", "e", 0, "number of epochs (overrides max_epochs)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of workers (overrides num_workers)")

	return cmd
}

type fitOptions struct {
	config, data, label, out, name string
	epochs, workers                int
}

func runFit(ctx context.Context, cmd *cobra.Command, o fitOptions) (fitResult, error) {
	cfg, err := cohort.LoadConfig(o.config)
	if err != nil {
		return fitResult{}, err
	}
	if o.workers > 0 {
		cfg.Trainer.NumWorkers = o.workers
	}
	x, err := readTable(o.data)
	if err != nil {
		return fitResult{}, err
	}
	if o.name == "" {
		o.name = namegenerator.NewGenerator().Generate()
	}
	if o.out == "" {
		dir := cfg.Registry.Dir
		if dir == "" {
			dir = "models"
		}
		o.out = filepath.Join(dir, o.name)
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	reporters := trainer.Reporters{trainer.NewLogReporter(logger)}
	if cfg.MQTT.URL != "" {
		mc := cfg.MQTT
		if mc.ClientID == "" {
			mc.ClientID = "cohort-cli-" + uuid.NewString()
		}
		ps, err := mqtt.NewPubSub(mc, logger)
		if err != nil {
			return fitResult{}, err
		}
		defer ps.Disconnect(context.WithoutCancel(ctx))
		reporters = append(reporters, trainer.BestEffort(trainer.NewMQTTReporter(ps, mc.Topics().Reports(o.name)), logger))
	}

	ec := cfg.Estimator.Build(cfg.Trainer)
	d, err := estimator.NewDriver(ec, estimator.WithLogger(logger), estimator.WithReporter(reporters))
	if err != nil {
		return fitResult{}, err
	}
	var opts []estimator.FitOption
	if o.epochs > 0 {
		opts = append(opts, estimator.WithEpochs(o.epochs))
	}
	if err := d.Fit(ctx, x, o.label, opts...); err != nil {
		return fitResult{}, err
	}

	manifest, err := cohort.NewManifest(o.name, o.label, x, cfg.Estimator, cfg.Trainer)
	if err != nil {
		return fitResult{}, err
	}
	b, err := d.SaveState()
	if err != nil {
		return fitResult{}, err
	}
	if err := registry.SaveDir(o.out, manifest, b); err != nil {
		return fitResult{}, err
	}

	h := d.History()
	last := maps.Clone(h.Last())
	delete(last, history.BatchesKey)

	return fitResult{
		Name:    o.name,
		Dir:     o.out,
		Workers: ec.NumWorkers,
		Epochs:  len(h),
		Last:    last,
	}, nil
}

func readTable(path string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return dataset.ReadCSV(f)
}
