package model

import (
	"context"
	"fmt"

	"vaclassify/internal/config"
	"vaclassify/internal/dataset"
	"vaclassify/internal/engine"
	"vaclassify/internal/logging"
)

// XGBoost is the gradient boosted trees backend. Training runs fully
// in-process; string feature cells are coerced to float64 with missing
// values preserved as NaN.
type XGBoost struct {
	base
	cfg     config.XGBoostConfig
	booster *engine.Booster
	encoder *dataset.LabelEncoder
}

// NewXGBoost builds an unfitted booster backend from a validated config.
func NewXGBoost(cfg config.XGBoostConfig) (*XGBoost, error) {
	cfg, err := config.NewXGBoostConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &XGBoost{base: newBase("xgboost"), cfg: cfg}, nil
}

// Fit trains the ensemble. Class imbalance is compensated with balanced
// sample weights, w = n / (k * count(class)).
func (m *XGBoost) Fit(ctx context.Context, features *dataset.Table, labels []string) error {
	return m.FitWeighted(ctx, features, labels, nil)
}

// FitWeighted trains the ensemble with caller-supplied per-sample weights.
// A nil weights slice falls back to balanced weights.
func (m *XGBoost) FitWeighted(ctx context.Context, features *dataset.Table, labels []string, weights []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if weights != nil && len(weights) != len(labels) {
		return &ValidationError{
			Stage:    "training",
			Problems: []string{fmt.Sprintf("%d sample weights for %d labels", len(weights), len(labels))},
		}
	}
	if err := m.beginFit(features, labels); err != nil {
		return err
	}

	m.encoder = dataset.FitLabels(labels)
	codes, err := m.encoder.Transform(labels)
	if err != nil {
		m.fitted = false
		return err
	}
	if weights == nil {
		weights = dataset.BalancedWeights(labels)
	}

	logging.Model("xgboost: training %d rounds on %d samples, %d classes",
		m.cfg.NEstimators, features.Len(), len(m.classes))

	booster, err := engine.Train(engine.Params{
		NumRounds:      m.cfg.NEstimators,
		MaxDepth:       m.cfg.MaxDepth,
		LearningRate:   m.cfg.LearningRate,
		Subsample:      m.cfg.Subsample,
		ColsampleTree:  m.cfg.ColsampleByTree,
		Lambda:         m.cfg.RegLambda,
		Alpha:          m.cfg.RegAlpha,
		Gamma:          m.cfg.Gamma,
		MinChildWeight: m.cfg.MinChildWeight,
		Seed:           m.cfg.RandomSeed,
	}, features.ToMatrix(), codes, weights, len(m.classes))
	if err != nil {
		m.fitted = false
		return err
	}

	m.booster = booster
	m.diags["n_trees"] = booster.NumTrees()
	m.diags["objective"] = m.cfg.Objective
	return nil
}

// PredictProba scores an aligned feature table with the trained ensemble.
func (m *XGBoost) PredictProba(ctx context.Context, features *dataset.Table) (*Probabilities, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	aligned, err := m.alignFeatures(features)
	if err != nil {
		return nil, err
	}
	raw := m.booster.PredictProba(aligned.ToMatrix())
	return m.formatProbabilities(m.encoder.Classes(), raw)
}

// FeatureImportance returns normalized gain-based importance per training
// column. Returns nil before Fit.
func (m *XGBoost) FeatureImportance() map[string]float64 {
	if !m.fitted {
		return nil
	}
	scores := m.booster.FeatureImportance()
	out := make(map[string]float64, len(m.columns))
	for i, col := range m.columns {
		out[col] = scores[i]
	}
	return out
}

// Predict returns the argmax cause per row.
func (m *XGBoost) Predict(ctx context.Context, features *dataset.Table) ([]string, error) {
	probs, err := m.PredictProba(ctx, features)
	if err != nil {
		return nil, err
	}
	return probs.Argmax(), nil
}
