package cli

import (
	"strconv"

	"github.com/absmach/cohort"
	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	defOffset uint64 = 0
	defLimit  uint64 = 10
)

var csdk sdk.SDK

func SetSDK(s sdk.SDK) {
	csdk = s
}

func NewModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models [fit|view|list|delete|stop|predict|reports]",
		Short: "Coordinator models",
		Long:  `Fit, view, list, delete, stop and query models on a coordinator.`,
	}

	var (
		configPath, name string
		epochs           int
	)
	fitCmd := &cobra.Command{
		Use:   "fit <label> <data.csv>",
		Short: "Fit model on the coordinator",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 || configPath == "" {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			req, err := fitRequest(configPath, name, args[0], args[1], epochs)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			m, err := csdk.Fit(req)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, m)
		},
	}
	fitCmd.Flags().StringVarP(&configPath, "config", "c", "", "experiment TOML file")
	fitCmd.Flags().StringVarP(&name, "name", "n", "", "model name")
	fitCmd.Flags().IntVarP(&epochs, "epochs", "e", 0, "number of epochs")

	viewCmd := &cobra.Command{
		Use:   "view <id>",
		Short: "View model",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			m, err := csdk.GetModel(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, m)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list [offset] [limit]",
		Short: "List models",
		Run: func(cmd *cobra.Command, args []string) {
			offset, limit := defOffset, defLimit
			var err error
			if len(args) > 0 {
				if offset, err = strconv.ParseUint(args[0], 10, 64); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}
			if len(args) > 1 {
				if limit, err = strconv.ParseUint(args[1], 10, 64); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}
			page, err := csdk.ListModels(offset, limit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete model",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			if err := csdk.DeleteModel(args[0]); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a running fit",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			if err := csdk.StopFit(args[0]); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	var proba bool
	predictCmd := &cobra.Command{
		Use:   "predict <id> <data.csv>",
		Short: "Predict with a fitted model",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			x, err := readTable(args[1])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			res := predictResult{Name: args[0]}
			if proba {
				res.Probabilities, err = csdk.PredictProba(args[0], x)
			} else {
				res.Predictions, err = csdk.Predict(args[0], x)
			}
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, res)
		},
	}
	predictCmd.Flags().BoolVarP(&proba, "proba", "p", false, "print probabilities instead of classes")

	reportsCmd := &cobra.Command{
		Use:   "reports <id>",
		Short: "View epoch reports",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			reports, err := csdk.Reports(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, reports)
		},
	}

	cmd.AddCommand(fitCmd, viewCmd, listCmd, deleteCmd, stopCmd, predictCmd, reportsCmd)

	return cmd
}

func fitRequest(configPath, name, label, dataPath string, epochs int) (coordinator.FitRequest, error) {
	cfg, err := cohort.LoadConfig(configPath)
	if err != nil {
		return coordinator.FitRequest{}, err
	}
	x, err := readTable(dataPath)
	if err != nil {
		return coordinator.FitRequest{}, err
	}

	return coordinator.FitRequest{
		Name:      name,
		Estimator: cfg.Estimator,
		Trainer:   cfg.Trainer,
		Label:     label,
		Epochs:    epochs,
		Data:      x,
	}, nil
}
