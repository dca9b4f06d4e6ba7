package dataset

import (
	"fmt"
	"math/rand"
)

// Fold holds the row indices of one cross-validation split.
type Fold struct {
	Train []int
	Test  []int
}

// KFold partitions n rows into k shuffled folds. The held-out sets are
// disjoint and cover every row; sizes differ by at most one.
func KFold(n, k int, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("dataset: k must be at least 2, got %d", k)
	}
	if n < k {
		return nil, fmt.Errorf("dataset: cannot split %d rows into %d folds", n, k)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	buckets := make([][]int, k)
	for i, idx := range perm {
		b := i % k
		buckets[b] = append(buckets[b], idx)
	}
	return assembleFolds(buckets, n), nil
}

// StratifiedKFold partitions rows into k folds preserving each label's
// overall frequency within rounding. Rows of each class are shuffled, then
// dealt round-robin across folds.
func StratifiedKFold(labels []string, k int, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("dataset: k must be at least 2, got %d", k)
	}
	n := len(labels)
	if n < k {
		return nil, fmt.Errorf("dataset: cannot split %d rows into %d folds", n, k)
	}

	byClass := make(map[string][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}

	rng := rand.New(rand.NewSource(seed))
	buckets := make([][]int, k)
	// Iterate classes in vocabulary order so the split is deterministic for
	// a given seed regardless of map iteration.
	for _, class := range FitLabels(labels).Classes() {
		idx := byClass[class]
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		// Rotate the starting bucket per class so remainders do not pile
		// into fold 0.
		start := rng.Intn(k)
		for i, row := range idx {
			b := (start + i) % k
			buckets[b] = append(buckets[b], row)
		}
	}
	return assembleFolds(buckets, n), nil
}

func assembleFolds(buckets [][]int, n int) []Fold {
	inTest := make([]int, n) // fold index per row
	for b, bucket := range buckets {
		for _, row := range bucket {
			inTest[row] = b
		}
	}
	folds := make([]Fold, len(buckets))
	for b := range buckets {
		var train, test []int
		for row := 0; row < n; row++ {
			if inTest[row] == b {
				test = append(test, row)
			} else {
				train = append(train, row)
			}
		}
		folds[b] = Fold{Train: train, Test: test}
	}
	return folds
}
