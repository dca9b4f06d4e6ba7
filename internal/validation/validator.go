// Package validation gates every training and prediction call against the
// structural and statistical preconditions shared by all backends. Rules
// never panic or return Go errors for data-shape problems; they report a
// Result and leave the abort decision to the caller.
package validation

import (
	"fmt"
	"sort"

	"vaclassify/internal/dataset"
)

// Rule thresholds shared across backends.
const (
	// MinTrainingSamples is the smallest training set any backend accepts.
	MinTrainingSamples = 10
	// MinDistinctCauses is the smallest usable class vocabulary.
	MinDistinctCauses = 2
	// SparseClassThreshold triggers a warning, not a failure.
	SparseClassThreshold = 3
	// ImbalanceRatioThreshold is the max/min class count ratio above which
	// a warning is emitted.
	ImbalanceRatioThreshold = 100.0
)

// Result reports the outcome of one validation call. Errors make the input
// unusable; warnings are advisory and must be surfaced to a logging channel
// by the caller. Metadata carries counts and distributions for diagnostics.
type Result struct {
	IsValid  bool
	Warnings []string
	Errors   []string
	Metadata map[string]interface{}
}

func newResult() *Result {
	return &Result{IsValid: true, Metadata: make(map[string]interface{})}
}

func (r *Result) fail(format string, args ...interface{}) {
	r.IsValid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// TrainingData checks a (features, labels) pair before fitting.
func TrainingData(features *dataset.Table, labels []string) *Result {
	result := newResult()

	if features.Len() == 0 || len(labels) == 0 {
		result.fail("training data is empty")
		return result
	}
	if features.Len() != len(labels) {
		result.fail("feature and label lengths don't match: %d vs %d", features.Len(), len(labels))
		return result
	}
	if features.Len() < MinTrainingSamples {
		result.fail("insufficient training samples: %d < %d", features.Len(), MinTrainingSamples)
		return result
	}

	counts := dataset.CountLabels(labels)
	if missing, ok := counts[""]; ok && missing > 0 {
		result.fail("labels contain %d missing values", missing)
		return result
	}
	if len(counts) < MinDistinctCauses {
		result.fail("insufficient unique causes: %d < %d", len(counts), MinDistinctCauses)
		return result
	}

	minCount, maxCount := -1, 0
	for _, c := range counts {
		if minCount < 0 || c < minCount {
			minCount = c
		}
		if c > maxCount {
			maxCount = c
		}
	}
	if minCount < SparseClassThreshold {
		result.warn("some causes have very few samples (min: %d); results may be unreliable", minCount)
	}
	if ratio := float64(maxCount) / float64(minCount); ratio > ImbalanceRatioThreshold {
		result.warn("highly imbalanced data detected (ratio: %.1f); consider stratified sampling", ratio)
	}

	result.Metadata["n_samples"] = features.Len()
	result.Metadata["n_features"] = features.NumColumns()
	result.Metadata["n_unique_causes"] = len(counts)
	result.Metadata["cause_distribution"] = counts
	result.Metadata["min_cause_count"] = minCount
	result.Metadata["max_cause_count"] = maxCount
	return result
}

// PredictionData checks a feature table before prediction.
func PredictionData(features *dataset.Table) *Result {
	result := newResult()

	if features.Len() == 0 {
		result.fail("prediction data is empty")
		return result
	}

	allMissing := features.AllMissingColumns()
	if len(allMissing) > 0 {
		result.warn("columns with all missing values: %v", allMissing)
	}

	result.Metadata["n_samples"] = features.Len()
	result.Metadata["n_features"] = features.NumColumns()
	result.Metadata["all_missing_columns"] = allMissing
	return result
}

// ColumnCompatibility checks that predict-time columns can be aligned to the
// training schema. Training columns absent at predict time are fatal; extra
// predict-time columns are tolerated and ignored.
func ColumnCompatibility(trainColumns, predictColumns []string) *Result {
	result := newResult()

	trainSet := make(map[string]struct{}, len(trainColumns))
	for _, c := range trainColumns {
		trainSet[c] = struct{}{}
	}
	predictSet := make(map[string]struct{}, len(predictColumns))
	for _, c := range predictColumns {
		predictSet[c] = struct{}{}
	}

	var missing, extra []string
	for c := range trainSet {
		if _, ok := predictSet[c]; !ok {
			missing = append(missing, c)
		}
	}
	for c := range predictSet {
		if _, ok := trainSet[c]; !ok {
			extra = append(extra, c)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)

	if len(missing) > 0 {
		result.fail("columns missing in prediction data: %v", missing)
	}
	if len(extra) > 0 {
		result.warn("extra columns in prediction data will be ignored: %v", extra)
	}

	result.Metadata["train_columns"] = len(trainColumns)
	result.Metadata["predict_columns"] = len(predictColumns)
	result.Metadata["missing_in_predict"] = missing
	result.Metadata["extra_in_predict"] = extra
	return result
}
