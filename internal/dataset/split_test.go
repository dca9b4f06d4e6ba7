package dataset

import (
	"testing"
)

func TestKFoldRejectsSmallK(t *testing.T) {
	if _, err := KFold(100, 1, 42); err == nil {
		t.Error("k=1 must be rejected")
	}
	if _, err := KFold(100, 0, 42); err == nil {
		t.Error("k=0 must be rejected")
	}
	if _, err := StratifiedKFold(make([]string, 100), 1, 42); err == nil {
		t.Error("stratified k=1 must be rejected")
	}
}

func TestKFoldCoversAllRows(t *testing.T) {
	folds, err := KFold(103, 5, 42)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[int]int)
	for _, f := range folds {
		for _, i := range f.Test {
			seen[i]++
		}
		if len(f.Train)+len(f.Test) != 103 {
			t.Errorf("train+test = %d, want 103", len(f.Train)+len(f.Test))
		}
	}
	if len(seen) != 103 {
		t.Fatalf("test sets cover %d rows, want 103", len(seen))
	}
	for i, n := range seen {
		if n != 1 {
			t.Errorf("row %d appears in %d test sets", i, n)
		}
	}
}

func TestStratifiedKFoldBalance(t *testing.T) {
	// 150 rows, three classes of 50. Each of 5 folds should hold out 30 rows
	// with 10 of each class, within rounding.
	labels := make([]string, 150)
	for i := range labels {
		switch i % 3 {
		case 0:
			labels[i] = "a"
		case 1:
			labels[i] = "b"
		default:
			labels[i] = "c"
		}
	}

	folds, err := StratifiedKFold(labels, 5, 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(folds) != 5 {
		t.Fatalf("got %d folds, want 5", len(folds))
	}
	for fi, f := range folds {
		counts := map[string]int{}
		for _, i := range f.Test {
			counts[labels[i]]++
		}
		for _, class := range []string{"a", "b", "c"} {
			if c := counts[class]; c < 9 || c > 11 {
				t.Errorf("fold %d: class %s has %d held-out rows, want 10±1", fi, class, c)
			}
		}
	}
}

func TestStratifiedKFoldDeterministic(t *testing.T) {
	labels := make([]string, 60)
	for i := range labels {
		labels[i] = string(rune('a' + i%4))
	}
	f1, err := StratifiedKFold(labels, 3, 7)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := StratifiedKFold(labels, 3, 7)
	if err != nil {
		t.Fatal(err)
	}
	for i := range f1 {
		if len(f1[i].Test) != len(f2[i].Test) {
			t.Fatalf("fold %d sizes differ between identical seeds", i)
		}
		for j := range f1[i].Test {
			if f1[i].Test[j] != f2[i].Test[j] {
				t.Fatalf("fold %d differs between identical seeds", i)
			}
		}
	}
}

func TestStratifiedKFoldMoreFoldsThanRows(t *testing.T) {
	if _, err := StratifiedKFold([]string{"a", "b"}, 5, 42); err == nil {
		t.Error("expected error when k exceeds row count")
	}
}
