package cli

import (
	"github.com/absmach/cohort/pkg/sdk"
	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
)

const DefTLSVerification = false

type envConfig struct {
	CoordinatorURL string `env:"COHORT_COORDINATOR_URL" envDefault:"http://localhost:7070"`
}

// NewRootCmd assembles the cohort-cli command tree.
func NewRootCmd() *cobra.Command {
	cfg := envConfig{}
	_ = env.Parse(&cfg)
	coordinatorURL := cfg.CoordinatorURL

	rootCmd := &cobra.Command{
		Use:   "cohort-cli",
		Short: "Cohort CLI",
		Long:  `Cohort CLI trains and serves data-parallel models locally or through a coordinator.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			SetSDK(sdk.NewSDK(sdk.Config{
				CoordinatorURL:  coordinatorURL,
				TLSVerification: DefTLSVerification,
			}))
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&coordinatorURL, "coordinator-url", "u", coordinatorURL, "coordinator URL")

	rootCmd.AddCommand(NewFitCmd(), NewPredictCmd(), NewModelsCmd())

	return rootCmd
}
