package cli

import (
	"github.com/absmach/cohort"
	"github.com/absmach/cohort/pkg/registry"
	"github.com/spf13/cobra"
)

type predictResult struct {
	Name          string      `json:"name"`
	Predictions   []int       `json:"predictions,omitempty"`
	Probabilities [][]float64 `json:"probabilities,omitempty"`
}

func NewPredictCmd() *cobra.Command {
	var (
		modelDir, dataPath string
		proba              bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict with a saved model",
		Long: `Load a model directory written by fit and predict the rows of a CSV file.

Examples:
  cohort-cli predict --model models/churn --data test.csv --proba`,
		Run: func(cmd *cobra.Command, _ []string) {
			if modelDir == "" || dataPath == "" {
				logUsageCmd(*cmd, cmd.UseLine())

				return
			}

			m, b, err := registry.LoadDir(modelDir)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			x, err := readTable(dataPath)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			d, err := cohort.Restore(cmd.Context(), m, b)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			res := predictResult{Name: m.Name}
			if proba {
				res.Probabilities, err = d.PredictProba(cmd.Context(), x)
			} else {
				res.Predictions, err = d.Predict(cmd.Context(), x)
			}
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, res)
		},
	}

	cmd.Flags().StringVarP(&modelDir, "model", "m", "", "model directory")
	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "input CSV file")
	cmd.Flags().BoolVarP(&proba, "proba", "p", false, "print probabilities instead of classes")

	return cmd
}
