package dataset

import (
	"fmt"
	"sort"
)

// LabelEncoder maps cause labels to dense integer codes and back. Classes are
// sorted lexicographically at fit time; that order is the class vocabulary
// every probability matrix is emitted in.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// FitLabels builds an encoder over the distinct values of labels.
func FitLabels(labels []string) *LabelEncoder {
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for l := range seen {
		classes = append(classes, l)
	}
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	return &LabelEncoder{classes: classes, index: index}
}

// Classes returns the sorted class vocabulary.
func (e *LabelEncoder) Classes() []string {
	return e.classes
}

// Transform encodes labels to integer codes. Unknown labels are an error.
func (e *LabelEncoder) Transform(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		code, ok := e.index[l]
		if !ok {
			return nil, fmt.Errorf("dataset: unknown label %q", l)
		}
		out[i] = code
	}
	return out, nil
}

// Inverse decodes integer codes back to labels.
func (e *LabelEncoder) Inverse(codes []int) ([]string, error) {
	out := make([]string, len(codes))
	for i, c := range codes {
		if c < 0 || c >= len(e.classes) {
			return nil, fmt.Errorf("dataset: label code %d out of range [0,%d)", c, len(e.classes))
		}
		out[i] = e.classes[c]
	}
	return out, nil
}

// BalancedWeights computes per-sample weights so every class contributes the
// same total weight: w = n / (k * count(class)).
func BalancedWeights(labels []string) []float64 {
	counts := make(map[string]int, 8)
	for _, l := range labels {
		counts[l]++
	}
	n := float64(len(labels))
	k := float64(len(counts))
	weights := make([]float64, len(labels))
	for i, l := range labels {
		weights[i] = n / (k * float64(counts[l]))
	}
	return weights
}

// CountLabels returns the per-class sample counts.
func CountLabels(labels []string) map[string]int {
	counts := make(map[string]int, 8)
	for _, l := range labels {
		counts[l]++
	}
	return counts
}
