package metrics

import (
	"math"
	"testing"
)

func TestCSMFAccuracyPerfectMatch(t *testing.T) {
	yTrue := []string{"a", "a", "b", "b", "c", "c"}
	yPred := []string{"a", "a", "b", "b", "c", "c"}
	if got := CSMFAccuracy(yTrue, yPred); got != 1.0 {
		t.Errorf("expected 1.0 for identical vectors, got %v", got)
	}
}

func TestCSMFAccuracyDistributionOnly(t *testing.T) {
	// Same marginal distribution, every individual assignment wrong. CSMF
	// accuracy only sees the distribution, so it must still be perfect.
	yTrue := []string{"a", "a", "b", "b"}
	yPred := []string{"b", "b", "a", "a"}
	if got := CSMFAccuracy(yTrue, yPred); got != 1.0 {
		t.Errorf("expected 1.0 for matching distributions, got %v", got)
	}
}

func TestCSMFAccuracyKnownValue(t *testing.T) {
	// true: a=0.5 b=0.5; pred: a=0.75 b=0.25
	// 1 - (0.25+0.25) / (2*(1-0.5)) = 0.5
	yTrue := []string{"a", "a", "b", "b"}
	yPred := []string{"a", "a", "a", "b"}
	got := CSMFAccuracy(yTrue, yPred)
	if math.Abs(got-0.5) > 1e-12 {
		t.Errorf("expected 0.5, got %v", got)
	}
}

func TestCSMFAccuracySingleCause(t *testing.T) {
	yTrue := []string{"a", "a", "a"}

	if got := CSMFAccuracy(yTrue, []string{"a", "a", "a"}); got != 1.0 {
		t.Errorf("single cause, exact match: expected 1.0, got %v", got)
	}
	if got := CSMFAccuracy(yTrue, []string{"a", "a", "b"}); got == 1.0 {
		t.Errorf("single cause with wrong prediction must not score 1.0")
	}
}

func TestCSMFAccuracyUnseenPredictedCause(t *testing.T) {
	// Predicted labels outside the true vocabulary enter the union with
	// true fraction 0 and count against the score.
	yTrue := []string{"a", "a", "b", "b"}
	yPred := []string{"c", "c", "c", "c"}
	got := CSMFAccuracy(yTrue, yPred)
	if got != 0.0 {
		t.Errorf("fully disjoint prediction: expected 0.0, got %v", got)
	}
}

func TestCSMFAccuracyNonNegative(t *testing.T) {
	yTrue := []string{"a", "a", "a", "a", "a", "b"}
	yPred := []string{"c", "c", "c", "c", "c", "c"}
	if got := CSMFAccuracy(yTrue, yPred); got < 0 {
		t.Errorf("accuracy must be clamped at 0, got %v", got)
	}
}

func TestCSMFOverlap(t *testing.T) {
	yTrue := []string{"a", "a", "b", "b"}
	if got := CSMFOverlap(yTrue, yTrue); got != 1.0 {
		t.Errorf("identical vectors: expected 1.0, got %v", got)
	}
	// overlap = min(0.5,0.75)+min(0.5,0.25) = 0.75 -> 2*(0.75-0.5) = 0.5
	got := CSMFOverlap(yTrue, []string{"a", "a", "a", "b"})
	if math.Abs(got-0.5) > 1e-12 {
		t.Errorf("expected 0.5, got %v", got)
	}
	if got := CSMFOverlap(yTrue, []string{"c", "c", "c", "c"}); got != 0.0 {
		t.Errorf("disjoint vectors: expected 0.0, got %v", got)
	}
}

func TestCODAccuracy(t *testing.T) {
	got, err := CODAccuracy([]string{"a", "b", "c", "d"}, []string{"a", "b", "x", "d"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0.75 {
		t.Errorf("expected 0.75, got %v", got)
	}

	if _, err := CODAccuracy([]string{"a"}, []string{"a", "b"}); err == nil {
		t.Error("expected error for mismatched lengths")
	}
	if _, err := CODAccuracy(nil, nil); err == nil {
		t.Error("expected error for empty vectors")
	}
}

func TestCoerceLabelsNumericEquivalence(t *testing.T) {
	got := CoerceLabels([]interface{}{12, 12.0, "12", int64(12)})
	for i, s := range got {
		if s != "12" {
			t.Errorf("value %d coerced to %q, want \"12\"", i, s)
		}
	}
}

func TestCoerceLabelsMakesTypesComparable(t *testing.T) {
	// The metric must not depend on whether cause codes arrive as numbers
	// or strings.
	yTrue := CoerceLabels([]interface{}{1, 2, 1, 2})
	yPred := CoerceLabels([]interface{}{"1", "2", "1", "2"})
	if got := CSMFAccuracy(yTrue, yPred); got != 1.0 {
		t.Errorf("expected 1.0 across label types, got %v", got)
	}
}
