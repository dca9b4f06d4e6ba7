// vaclassify is the command-line front end: validate VA datasets, train and
// apply a backend, and run cross-validation experiments with persisted
// results.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vaclassify/internal/config"
	"vaclassify/internal/logging"
)

var (
	verbose    bool
	configPath string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vaclassify",
	Short: "Cause-of-death classification for verbal autopsy data",
	Long: `vaclassify trains and evaluates cause-of-death classifiers on verbal
autopsy records through a single uniform interface.

Backends:
  insilico   InSilicoVA (Bayesian MCMC via openVA in Docker)
  xgboost    Gradient boosted trees (in-process)
  incontext  Foundation-model in-context classification (Gemini)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(verbose); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		} else {
			cfg = config.Default()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(crossvalCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(runsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
