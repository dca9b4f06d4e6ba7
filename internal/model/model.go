// Package model defines the uniform classifier contract shared by every
// cause-of-death backend and the plumbing all of them need: schema capture
// at fit time, column realignment at predict time, probability matrix
// normalization and argmax decoding. Backends differ only in how they turn
// an aligned feature table into per-class probabilities.
package model

import (
	"context"
	"fmt"

	"vaclassify/internal/dataset"
	"vaclassify/internal/logging"
	"vaclassify/internal/validation"
)

// Classifier is the uniform interface over the heterogeneous backends. A
// classifier starts unfitted; Fit transitions it to fitted and fixes the
// class vocabulary and feature schema for the lifetime of the instance.
type Classifier interface {
	// Fit trains on a feature table and parallel label slice. Inputs that
	// fail validation return a ValidationError and leave the classifier
	// unfitted.
	Fit(ctx context.Context, features *dataset.Table, labels []string) error

	// Predict returns one cause label per input row.
	Predict(ctx context.Context, features *dataset.Table) ([]string, error)

	// PredictProba returns a row-per-sample probability matrix whose columns
	// follow Classes() ordering. Every row sums to 1 unless the backend
	// produced no mass for it at all.
	PredictProba(ctx context.Context, features *dataset.Table) (*Probabilities, error)

	// Classes returns the sorted cause vocabulary captured at fit time.
	// Returns nil before Fit.
	Classes() []string

	// Name identifies the backend in logs and stored results.
	Name() string

	// Diagnostics exposes backend-specific information gathered during the
	// last Fit, for reporting. Keys vary per backend.
	Diagnostics() map[string]interface{}
}

// Factory builds a fresh unfitted classifier. The cross-validation harness
// uses one per fold.
type Factory func() (Classifier, error)

// Probabilities is a dense probability matrix with its column vocabulary.
type Probabilities struct {
	Classes []string
	// Rows[i][j] is the probability of Classes[j] for sample i.
	Rows [][]float64
}

// Argmax decodes each row to the most probable class. Ties break toward the
// lowest column index, which is deterministic because Classes is sorted.
func (p *Probabilities) Argmax() []string {
	out := make([]string, len(p.Rows))
	for i, row := range p.Rows {
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		out[i] = p.Classes[best]
	}
	return out
}

// base carries the state machine and schema bookkeeping shared by every
// backend. Backends embed it and call beginFit / alignFeatures.
type base struct {
	name    string
	fitted  bool
	classes []string
	columns []string
	diags   map[string]interface{}
}

func newBase(name string) base {
	return base{name: name, diags: make(map[string]interface{})}
}

func (b *base) Name() string { return b.name }

func (b *base) Classes() []string {
	if !b.fitted {
		return nil
	}
	out := make([]string, len(b.classes))
	copy(out, b.classes)
	return out
}

func (b *base) Diagnostics() map[string]interface{} {
	out := make(map[string]interface{}, len(b.diags))
	for k, v := range b.diags {
		out[k] = v
	}
	return out
}

// beginFit validates the training pair and captures the schema. Validation
// failure leaves the receiver unfitted.
func (b *base) beginFit(features *dataset.Table, labels []string) error {
	result := validation.TrainingData(features, labels)
	for _, w := range result.Warnings {
		logging.ModelWarn("%s: %s", b.name, w)
	}
	if !result.IsValid {
		return &ValidationError{Stage: "training", Problems: result.Errors, Warnings: result.Warnings}
	}

	enc := dataset.FitLabels(labels)
	b.classes = enc.Classes()
	b.columns = features.Columns()
	b.fitted = true
	b.diags["n_train_samples"] = features.Len()
	b.diags["n_classes"] = len(b.classes)
	return nil
}

// alignFeatures validates a predict-time table against the training schema
// and reorders its columns to match. Extra columns are dropped with a
// warning; missing ones are fatal.
func (b *base) alignFeatures(features *dataset.Table) (*dataset.Table, error) {
	if !b.fitted {
		return nil, ErrNotFitted
	}

	result := validation.PredictionData(features)
	if result.IsValid {
		compat := validation.ColumnCompatibility(b.columns, features.Columns())
		result.Warnings = append(result.Warnings, compat.Warnings...)
		result.Errors = append(result.Errors, compat.Errors...)
		result.IsValid = compat.IsValid
	}
	for _, w := range result.Warnings {
		logging.ModelWarn("%s: %s", b.name, w)
	}
	if !result.IsValid {
		return nil, &ValidationError{Stage: "prediction", Problems: result.Errors, Warnings: result.Warnings}
	}
	return features.Select(b.columns)
}

// formatProbabilities maps a backend's raw (classes, matrix) output onto the
// training vocabulary: classes the backend never scored get a zero column,
// then each row is renormalized. Rows with no mass at all are left as zeros
// rather than invented uniform.
func (b *base) formatProbabilities(rawClasses []string, raw [][]float64) (*Probabilities, error) {
	index := make(map[string]int, len(rawClasses))
	for j, c := range rawClasses {
		index[c] = j
	}

	rows := make([][]float64, len(raw))
	for i, rawRow := range raw {
		if len(rawRow) != len(rawClasses) {
			return nil, fmt.Errorf("probability row %d has %d columns, expected %d", i, len(rawRow), len(rawClasses))
		}
		row := make([]float64, len(b.classes))
		var sum float64
		for j, class := range b.classes {
			if k, ok := index[class]; ok {
				row[j] = rawRow[k]
				sum += rawRow[k]
			}
		}
		if sum > 0 {
			for j := range row {
				row[j] /= sum
			}
		}
		rows[i] = row
	}
	return &Probabilities{Classes: b.Classes(), Rows: rows}, nil
}
