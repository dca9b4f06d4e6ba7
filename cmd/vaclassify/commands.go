package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vaclassify/internal/crossval"
	"vaclassify/internal/dataset"
	"vaclassify/internal/docker"
	"vaclassify/internal/model"
	"vaclassify/internal/store"
	"vaclassify/internal/validation"
)

var (
	backendName string
	causeColumn string

	cvK          int
	cvStratified bool
	cvSeed       int64
	cvParallel   bool

	predictOut   string
	predictProba bool

	runsLimit int
)

// newBackend builds an unfitted classifier for the named backend using the
// loaded configuration.
func newBackend(name string) (model.Classifier, error) {
	switch name {
	case "insilico":
		return model.NewInSilico(cfg.InSilico)
	case "xgboost":
		return model.NewXGBoost(cfg.XGBoost)
	case "incontext":
		return model.NewInContext(cfg.InContext)
	default:
		return nil, fmt.Errorf("unknown backend %q (want insilico, xgboost or incontext)", name)
	}
}

// loadLabeled reads a CSV and splits off the cause column as labels.
func loadLabeled(path, causeCol string) (*dataset.Table, []string, error) {
	table, err := dataset.ReadCSVFile(path)
	if err != nil {
		return nil, nil, err
	}
	var featureCols []string
	found := false
	for _, c := range table.Columns() {
		if c == causeCol {
			found = true
			continue
		}
		featureCols = append(featureCols, c)
	}
	if !found {
		return nil, nil, fmt.Errorf("%s: cause column %q not found", path, causeCol)
	}
	labels := make([]string, table.Len())
	for i := 0; i < table.Len(); i++ {
		labels[i], _ = table.Cell(i, causeCol)
	}
	features, err := table.Select(featureCols)
	if err != nil {
		return nil, nil, err
	}
	return features, labels, nil
}

func printResult(header string, result *validation.Result) {
	status := "OK"
	if !result.IsValid {
		status = "FAILED"
	}
	fmt.Printf("%s: %s\n", header, status)
	for _, e := range result.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}

var checkCmd = &cobra.Command{
	Use:   "check [training.csv]",
	Short: "Validate a training dataset and the execution environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		features, labels, err := loadLabeled(args[0], causeColumn)
		if err != nil {
			return err
		}

		data := validation.TrainingData(features, labels)
		printResult("training data", data)
		if n, ok := data.Metadata["n_unique_causes"]; ok {
			fmt.Printf("  %v samples, %v features, %v causes\n",
				data.Metadata["n_samples"], data.Metadata["n_features"], n)
		}

		runtime := docker.ValidateRuntime(docker.NewExecutor(), cfg.InSilico.DockerImage, cfg.InSilico.UseFallbackBuild)
		printResult("docker runtime", runtime)

		if !data.IsValid || !runtime.IsValid {
			return fmt.Errorf("validation failed")
		}
		return nil
	},
}

var crossvalCmd = &cobra.Command{
	Use:   "crossval [training.csv]",
	Short: "Cross-validate a backend and report CSMF and COD accuracy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		features, labels, err := loadLabeled(args[0], causeColumn)
		if err != nil {
			return err
		}

		factory := func() (model.Classifier, error) { return newBackend(backendName) }
		opts := crossval.Options{K: cvK, Stratified: cvStratified, Seed: cvSeed, Parallel: cvParallel}
		result, err := crossval.Run(cmd.Context(), factory, features, labels, opts)
		if err != nil {
			return err
		}

		fmt.Printf("backend: %s (k=%d, stratified=%v)\n", result.Backend, result.K, cvStratified)
		fmt.Printf("csmf_accuracy: %.4f ± %.4f\n", result.CSMFAccuracyMean, result.CSMFAccuracyStd)
		fmt.Printf("cod_accuracy:  %.4f ± %.4f\n", result.CODAccuracyMean, result.CODAccuracyStd)
		for _, f := range result.Folds {
			fmt.Printf("  fold %d: csmf=%.4f cod=%.4f (train=%d test=%d)\n",
				f.Fold, f.CSMFAccuracy, f.CODAccuracy, f.TrainSize, f.TestSize)
		}

		if cfg.ResultsDB != "" {
			db, err := store.Open(cfg.ResultsDB)
			if err != nil {
				return err
			}
			defer db.Close()
			id, err := db.SaveRun(cmd.Context(), result, opts, features.Len())
			if err != nil {
				return err
			}
			fmt.Printf("saved as run %s\n", id)
		}
		return nil
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict [training.csv] [test.csv]",
	Short: "Train a backend and classify a test dataset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		features, labels, err := loadLabeled(args[0], causeColumn)
		if err != nil {
			return err
		}
		test, err := dataset.ReadCSVFile(args[1])
		if err != nil {
			return err
		}
		// Tolerate a labeled test file by dropping its cause column.
		for _, c := range test.Columns() {
			if c == causeColumn {
				var keep []string
				for _, k := range test.Columns() {
					if k != causeColumn {
						keep = append(keep, k)
					}
				}
				if test, err = test.Select(keep); err != nil {
					return err
				}
				break
			}
		}

		clf, err := newBackend(backendName)
		if err != nil {
			return err
		}
		if err := clf.Fit(cmd.Context(), features, labels); err != nil {
			return err
		}

		var out *dataset.Table
		if predictProba {
			probs, err := clf.PredictProba(cmd.Context(), test)
			if err != nil {
				return err
			}
			rows := make([][]string, len(probs.Rows))
			for i, row := range probs.Rows {
				cells := make([]string, len(row))
				for j, p := range row {
					cells[j] = fmt.Sprintf("%.6f", p)
				}
				rows[i] = cells
			}
			if out, err = dataset.NewTable(probs.Classes, rows); err != nil {
				return err
			}
		} else {
			pred, err := clf.Predict(cmd.Context(), test)
			if err != nil {
				return err
			}
			rows := make([][]string, len(pred))
			for i, p := range pred {
				rows[i] = []string{p}
			}
			if out, err = dataset.NewTable([]string{causeColumn}, rows); err != nil {
				return err
			}
		}

		if predictOut == "" || predictOut == "-" {
			return out.WriteCSV(cmd.OutOrStdout())
		}
		if err := out.WriteCSVFile(predictOut); err != nil {
			return err
		}
		fmt.Printf("wrote %d predictions to %s\n", out.Len(), predictOut)
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored cross-validation runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.ResultsDB == "" {
			return fmt.Errorf("no results_db configured")
		}
		db, err := store.Open(cfg.ResultsDB)
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := db.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}
		for _, r := range records {
			strat := ""
			if r.Stratified {
				strat = " stratified"
			}
			fmt.Printf("%s  %s  %-9s k=%d%s  csmf=%.4f±%.4f cod=%.4f±%.4f  n=%d\n",
				r.ID[:8], r.CreatedAt.Format("2006-01-02 15:04"), r.Backend, r.K, strat,
				r.CSMFAccuracyMean, r.CSMFAccuracyStd, r.CODAccuracyMean, r.CODAccuracyStd, r.NSamples)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{checkCmd, crossvalCmd, predictCmd} {
		c.Flags().StringVar(&causeColumn, "cause-column", "va34", "name of the cause-of-death column")
	}
	for _, c := range []*cobra.Command{crossvalCmd, predictCmd} {
		c.Flags().StringVarP(&backendName, "backend", "b", "xgboost",
			"backend to use: "+strings.Join([]string{"insilico", "xgboost", "incontext"}, ", "))
	}

	crossvalCmd.Flags().IntVarP(&cvK, "folds", "k", 5, "number of folds")
	crossvalCmd.Flags().BoolVar(&cvStratified, "stratified", true, "preserve class frequencies across folds")
	crossvalCmd.Flags().Int64Var(&cvSeed, "seed", 42, "random seed for fold assignment")
	crossvalCmd.Flags().BoolVar(&cvParallel, "parallel", false, "train folds concurrently (in-process backends only)")

	predictCmd.Flags().StringVarP(&predictOut, "output", "o", "-", "output CSV path, - for stdout")
	predictCmd.Flags().BoolVar(&predictProba, "proba", false, "write per-class probabilities instead of labels")

	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
}
