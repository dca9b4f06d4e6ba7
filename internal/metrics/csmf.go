// Package metrics implements the evaluation measures shared by every
// backend. CSMF accuracy compares cause distributions at the population
// level; COD accuracy counts per-case agreement. Both are pure functions.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// CSMFAccuracy computes Cause-Specific Mortality Fraction accuracy between
// the true and predicted label vectors, following the openVA convention:
//
//	1 - sum(|pred_frac - true_frac|) / (2 * (1 - min(true_frac)))
//
// evaluated over the sorted union of labels observed in either vector, with
// absent labels contributing fraction 0. The result is clamped to be
// non-negative. When the true distribution is concentrated on a single cause
// the denominator vanishes; the score is then 1 for an exact match and 0
// otherwise.
func CSMFAccuracy(yTrue, yPred []string) float64 {
	trueFrac := fractions(yTrue)
	predFrac := fractions(yPred)

	domain := labelUnion(trueFrac, predFrac)

	var numerator float64
	minTrue := math.Inf(1)
	for _, label := range domain {
		t := trueFrac[label]
		p := predFrac[label]
		numerator += math.Abs(p - t)
		if t < minTrue {
			minTrue = t
		}
	}

	// Single observed cause: every other domain label has true fraction 0
	// unless the domain is that one cause alone.
	if minTrue == 1 {
		if numerator == 0 {
			return 1.0
		}
		return 0.0
	}

	accuracy := 1 - numerator/(2*(1-minTrue))
	if accuracy < 0 {
		return 0.0
	}
	return accuracy
}

// CSMFOverlap computes the minimum-overlap CSMF convention used by some of
// the VA literature: 2*(sum(min(true_frac, pred_frac)) - 0.5), clamped to
// [0,1]. It is a distinct metric from CSMFAccuracy and is never substituted
// for it.
func CSMFOverlap(yTrue, yPred []string) float64 {
	trueFrac := fractions(yTrue)
	predFrac := fractions(yPred)

	var overlap float64
	for _, label := range labelUnion(trueFrac, predFrac) {
		overlap += math.Min(trueFrac[label], predFrac[label])
	}

	score := 2 * (overlap - 0.5)
	if score < 0 {
		return 0.0
	}
	if score > 1 {
		return 1.0
	}
	return score
}

// CODAccuracy is the fraction of cases whose predicted cause equals the true
// cause. Vectors must be the same length.
func CODAccuracy(yTrue, yPred []string) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("metrics: length mismatch: %d vs %d", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0, fmt.Errorf("metrics: empty label vectors")
	}
	matches := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(yTrue)), nil
}

// CoerceLabels renders arbitrary cause codes as canonical strings so numeric
// and textual codes compare equivalently (12, 12.0 and "12" all become "12").
func CoerceLabels(values []interface{}) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = coerce(v)
	}
	return out
}

func coerce(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}

// fractions returns each label's share of the vector. Counting first keeps
// the fractions exact (count/n is exactly 1.0 for a single-class vector).
func fractions(labels []string) map[string]float64 {
	counts := make(map[string]int, 8)
	for _, l := range labels {
		counts[l]++
	}
	out := make(map[string]float64, len(counts))
	n := float64(len(labels))
	for l, c := range counts {
		out[l] = float64(c) / n
	}
	return out
}

// labelUnion returns the alphabetically sorted union of the keys of both maps.
func labelUnion(a, b map[string]float64) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for l := range a {
		seen[l] = struct{}{}
	}
	for l := range b {
		seen[l] = struct{}{}
	}
	union := make([]string, 0, len(seen))
	for l := range seen {
		union = append(union, l)
	}
	sort.Strings(union)
	return union
}
