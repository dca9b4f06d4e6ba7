// Package crossval evaluates a classifier backend with k-fold
// cross-validation. Each fold trains a fresh instance from a factory so no
// state leaks between folds, and reports both the distribution-level CSMF
// accuracy and the individual-level agreement rate (COD accuracy).
package crossval

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"vaclassify/internal/dataset"
	"vaclassify/internal/logging"
	"vaclassify/internal/metrics"
	"vaclassify/internal/model"
)

// Options controls one cross-validation run.
type Options struct {
	// K is the fold count; must be at least 2.
	K int
	// Stratified preserves per-class frequencies across folds.
	Stratified bool
	Seed       int64
	// Parallel trains folds concurrently. Only safe for in-process backends;
	// the container backend serializes on the docker daemon anyway.
	Parallel bool
}

// FoldScore holds the metrics of one held-out fold.
type FoldScore struct {
	Fold         int     `json:"fold"`
	CSMFAccuracy float64 `json:"csmf_accuracy"`
	CODAccuracy  float64 `json:"cod_accuracy"`
	TrainSize    int     `json:"train_size"`
	TestSize     int     `json:"test_size"`
}

// Result aggregates per-fold scores.
type Result struct {
	Backend string      `json:"backend"`
	K       int         `json:"k"`
	Folds   []FoldScore `json:"folds"`

	CSMFAccuracyMean   float64   `json:"csmf_accuracy_mean"`
	CSMFAccuracyStd    float64   `json:"csmf_accuracy_std"`
	CSMFAccuracyScores []float64 `json:"csmf_accuracy_scores"`

	CODAccuracyMean   float64   `json:"cod_accuracy_mean"`
	CODAccuracyStd    float64   `json:"cod_accuracy_std"`
	CODAccuracyScores []float64 `json:"cod_accuracy_scores"`
}

// Run cross-validates a backend. The factory is invoked once per fold.
func Run(ctx context.Context, factory model.Factory, features *dataset.Table, labels []string, opts Options) (*Result, error) {
	if features.Len() != len(labels) {
		return nil, fmt.Errorf("crossval: %d feature rows for %d labels", features.Len(), len(labels))
	}

	var folds []dataset.Fold
	var err error
	if opts.Stratified {
		folds, err = dataset.StratifiedKFold(labels, opts.K, opts.Seed)
	} else {
		folds, err = dataset.KFold(features.Len(), opts.K, opts.Seed)
	}
	if err != nil {
		return nil, err
	}

	probe, err := factory()
	if err != nil {
		return nil, err
	}
	result := &Result{
		Backend: probe.Name(),
		K:       opts.K,
		Folds:   make([]FoldScore, len(folds)),
	}

	if opts.Parallel {
		err = runParallel(ctx, factory, features, labels, folds, result)
	} else {
		err = runSequential(ctx, factory, features, labels, folds, result)
	}
	if err != nil {
		return nil, err
	}

	result.finalize()
	logging.CrossVal("%s: csmf_accuracy %.4f±%.4f, cod_accuracy %.4f±%.4f over %d folds",
		result.Backend, result.CSMFAccuracyMean, result.CSMFAccuracyStd,
		result.CODAccuracyMean, result.CODAccuracyStd, opts.K)
	return result, nil
}

func runSequential(ctx context.Context, factory model.Factory, features *dataset.Table, labels []string, folds []dataset.Fold, result *Result) error {
	for i, fold := range folds {
		score, err := runFold(ctx, factory, features, labels, i, fold)
		if err != nil {
			return err
		}
		result.Folds[i] = score
	}
	return nil
}

func runParallel(ctx context.Context, factory model.Factory, features *dataset.Table, labels []string, folds []dataset.Fold, result *Result) error {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, fold := range folds {
		i, fold := i, fold
		g.Go(func() error {
			score, err := runFold(gctx, factory, features, labels, i, fold)
			if err != nil {
				return err
			}
			mu.Lock()
			result.Folds[i] = score
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func runFold(ctx context.Context, factory model.Factory, features *dataset.Table, labels []string, i int, fold dataset.Fold) (FoldScore, error) {
	clf, err := factory()
	if err != nil {
		return FoldScore{}, fmt.Errorf("crossval: fold %d: %w", i, err)
	}

	trainX := features.Subset(fold.Train)
	trainY := subsetLabels(labels, fold.Train)
	testX := features.Subset(fold.Test)
	testY := subsetLabels(labels, fold.Test)

	if err := clf.Fit(ctx, trainX, trainY); err != nil {
		return FoldScore{}, fmt.Errorf("crossval: fold %d fit: %w", i, err)
	}
	pred, err := clf.Predict(ctx, testX)
	if err != nil {
		return FoldScore{}, fmt.Errorf("crossval: fold %d predict: %w", i, err)
	}

	cod, err := metrics.CODAccuracy(testY, pred)
	if err != nil {
		return FoldScore{}, fmt.Errorf("crossval: fold %d: %w", i, err)
	}
	return FoldScore{
		Fold:         i,
		CSMFAccuracy: metrics.CSMFAccuracy(testY, pred),
		CODAccuracy:  cod,
		TrainSize:    len(fold.Train),
		TestSize:     len(fold.Test),
	}, nil
}

// finalize fills the aggregate fields from the per-fold scores. Std is the
// population standard deviation over the folds.
func (r *Result) finalize() {
	r.CSMFAccuracyScores = make([]float64, len(r.Folds))
	r.CODAccuracyScores = make([]float64, len(r.Folds))
	for i, f := range r.Folds {
		r.CSMFAccuracyScores[i] = f.CSMFAccuracy
		r.CODAccuracyScores[i] = f.CODAccuracy
	}
	r.CSMFAccuracyMean = stat.Mean(r.CSMFAccuracyScores, nil)
	r.CSMFAccuracyStd = stat.PopStdDev(r.CSMFAccuracyScores, nil)
	r.CODAccuracyMean = stat.Mean(r.CODAccuracyScores, nil)
	r.CODAccuracyStd = stat.PopStdDev(r.CODAccuracyScores, nil)
}

func subsetLabels(labels []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = labels[j]
	}
	return out
}
