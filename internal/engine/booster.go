// Package engine implements multiclass gradient boosted trees with a
// softmax objective. It is the in-process training core behind the boosted
// trees backend: second-order gradients, depth-limited regression trees,
// row and column subsampling, L1/L2 regularization and learned default
// directions for missing values.
package engine

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"vaclassify/internal/logging"
)

// Params are the booster hyperparameters. Domains are enforced by the
// config layer before construction.
type Params struct {
	NumRounds      int
	MaxDepth       int
	LearningRate   float64
	Subsample      float64
	ColsampleTree  float64
	Lambda         float64 // L2 on leaf weights
	Alpha          float64 // L1 on leaf weights
	Gamma          float64 // minimum split gain
	MinChildWeight float64
	Seed           int64
}

// Booster is a trained multiclass ensemble. One tree per class per round.
type Booster struct {
	numClass   int
	rounds     [][]*tree
	shrink     float64
	importance []float64
}

// Train fits a booster on a dense row-major feature matrix. labels are class
// codes in [0, numClass); weights may be nil for uniform. NaN cells are
// treated as missing.
func Train(p Params, features [][]float64, labels []int, weights []float64, numClass int) (*Booster, error) {
	n := len(features)
	if n == 0 {
		return nil, fmt.Errorf("engine: empty training matrix")
	}
	if len(labels) != n {
		return nil, fmt.Errorf("engine: %d labels for %d rows", len(labels), n)
	}
	if numClass < 2 {
		return nil, fmt.Errorf("engine: need at least 2 classes, got %d", numClass)
	}
	for i, l := range labels {
		if l < 0 || l >= numClass {
			return nil, fmt.Errorf("engine: label code %d at row %d out of range", l, i)
		}
	}
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1
		}
	}

	numFeatures := len(features[0])
	rng := rand.New(rand.NewSource(p.Seed))

	// margins[i][c] is the running raw score of row i for class c.
	margins := make([][]float64, n)
	for i := range margins {
		margins[i] = make([]float64, numClass)
	}

	b := &Booster{
		numClass:   numClass,
		shrink:     p.LearningRate,
		importance: make([]float64, numFeatures),
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	probs := make([]float64, numClass)

	for round := 0; round < p.NumRounds; round++ {
		rows := sampleRows(rng, n, p.Subsample)
		cols := sampleCols(rng, numFeatures, p.ColsampleTree)

		classTrees := make([]*tree, numClass)
		for c := 0; c < numClass; c++ {
			for _, i := range rows {
				softmax(margins[i], probs)
				pc := probs[c]
				y := 0.0
				if labels[i] == c {
					y = 1
				}
				grad[i] = weights[i] * (pc - y)
				// Scaled as xgboost does for softprob.
				hess[i] = weights[i] * 2 * pc * (1 - pc)
				if hess[i] < 1e-16 {
					hess[i] = 1e-16
				}
			}
			t := buildTree(features, rows, cols, grad, hess, p, 0, b.importance)
			classTrees[c] = t
			for _, i := range rows {
				margins[i][c] += p.LearningRate * t.predict(features[i])
			}
		}
		b.rounds = append(b.rounds, classTrees)
		if (round+1)%50 == 0 {
			logging.Get(logging.CategoryEngine).Debugf("boosting round %d/%d", round+1, p.NumRounds)
		}
	}
	return b, nil
}

// PredictProba returns the softmax probability matrix for a feature matrix.
func (b *Booster) PredictProba(features [][]float64) [][]float64 {
	out := make([][]float64, len(features))
	for i, row := range features {
		margins := make([]float64, b.numClass)
		for _, classTrees := range b.rounds {
			for c, t := range classTrees {
				margins[c] += b.shrink * t.predict(row)
			}
		}
		p := make([]float64, b.numClass)
		softmax(margins, p)
		out[i] = p
	}
	return out
}

// NumTrees returns the total tree count across rounds and classes.
func (b *Booster) NumTrees() int {
	return len(b.rounds) * b.numClass
}

// FeatureImportance returns per-feature total split gain, normalized to sum
// to 1. Features never split on score 0. All-zero when no split was made.
func (b *Booster) FeatureImportance() []float64 {
	out := make([]float64, len(b.importance))
	total := floats.Sum(b.importance)
	if total == 0 {
		return out
	}
	for i, g := range b.importance {
		out[i] = g / total
	}
	return out
}

func softmax(margins, out []float64) {
	max := floats.Max(margins)
	var sum float64
	for i, m := range margins {
		out[i] = math.Exp(m - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
}

func sampleRows(rng *rand.Rand, n int, frac float64) []int {
	if frac >= 1 {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	k := int(math.Max(1, frac*float64(n)))
	perm := rng.Perm(n)[:k]
	return perm
}

func sampleCols(rng *rand.Rand, n int, frac float64) []int {
	if frac >= 1 {
		cols := make([]int, n)
		for i := range cols {
			cols[i] = i
		}
		return cols
	}
	k := int(math.Max(1, frac*float64(n)))
	return rng.Perm(n)[:k]
}
