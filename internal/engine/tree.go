package engine

import (
	"math"
	"sort"
)

// tree is a depth-limited regression tree over second-order gradients. Each
// split learns a default direction for missing values.
type tree struct {
	leaf        bool
	value       float64
	feature     int
	threshold   float64
	defaultLeft bool
	left        *tree
	right       *tree
}

func (t *tree) predict(row []float64) float64 {
	for !t.leaf {
		v := row[t.feature]
		if math.IsNaN(v) {
			if t.defaultLeft {
				t = t.left
			} else {
				t = t.right
			}
			continue
		}
		if v < t.threshold {
			t = t.left
		} else {
			t = t.right
		}
	}
	return t.value
}

// split describes the best candidate found for one node.
type split struct {
	gain        float64
	feature     int
	threshold   float64
	defaultLeft bool
}

// buildTree grows one node recursively. imp accumulates per-feature split
// gain for importance reporting.
func buildTree(features [][]float64, rows, cols []int, grad, hess []float64, p Params, depth int, imp []float64) *tree {
	var gSum, hSum float64
	for _, i := range rows {
		gSum += grad[i]
		hSum += hess[i]
	}

	if depth >= p.MaxDepth || hSum < 2*p.MinChildWeight || len(rows) < 2 {
		return &tree{leaf: true, value: leafValue(gSum, hSum, p)}
	}

	best := findBestSplit(features, rows, cols, grad, hess, gSum, hSum, p)
	if best == nil {
		return &tree{leaf: true, value: leafValue(gSum, hSum, p)}
	}
	imp[best.feature] += best.gain

	var leftRows, rightRows []int
	for _, i := range rows {
		v := features[i][best.feature]
		switch {
		case math.IsNaN(v):
			if best.defaultLeft {
				leftRows = append(leftRows, i)
			} else {
				rightRows = append(rightRows, i)
			}
		case v < best.threshold:
			leftRows = append(leftRows, i)
		default:
			rightRows = append(rightRows, i)
		}
	}
	if len(leftRows) == 0 || len(rightRows) == 0 {
		return &tree{leaf: true, value: leafValue(gSum, hSum, p)}
	}

	return &tree{
		feature:     best.feature,
		threshold:   best.threshold,
		defaultLeft: best.defaultLeft,
		left:        buildTree(features, leftRows, cols, grad, hess, p, depth+1, imp),
		right:       buildTree(features, rightRows, cols, grad, hess, p, depth+1, imp),
	}
}

// findBestSplit scans every candidate threshold on the sampled columns.
// Missing-value rows are tried on both sides and the better direction is
// recorded as the node default.
func findBestSplit(features [][]float64, rows, cols []int, grad, hess []float64, gSum, hSum float64, p Params) *split {
	parentScore := scoreOf(gSum, hSum, p.Lambda)

	var best *split
	type entry struct {
		v, g, h float64
	}
	entries := make([]entry, 0, len(rows))

	for _, f := range cols {
		entries = entries[:0]
		var gMiss, hMiss float64
		for _, i := range rows {
			v := features[i][f]
			if math.IsNaN(v) {
				gMiss += grad[i]
				hMiss += hess[i]
				continue
			}
			entries = append(entries, entry{v: v, g: grad[i], h: hess[i]})
		}
		if len(entries) < 2 {
			continue
		}
		sort.Slice(entries, func(a, b int) bool { return entries[a].v < entries[b].v })

		var gLeft, hLeft float64
		for k := 0; k < len(entries)-1; k++ {
			gLeft += entries[k].g
			hLeft += entries[k].h
			if entries[k].v == entries[k+1].v {
				continue
			}
			gRight := gSum - gMiss - gLeft
			hRight := hSum - hMiss - hLeft

			// Missing rows on the right.
			gain := splitGain(gLeft, hLeft, gRight+gMiss, hRight+hMiss, parentScore, p)
			defaultLeft := false
			// Missing rows on the left.
			if g := splitGain(gLeft+gMiss, hLeft+hMiss, gRight, hRight, parentScore, p); g > gain {
				gain = g
				defaultLeft = true
			}
			if gain <= 0 {
				continue
			}
			if best == nil || gain > best.gain {
				best = &split{
					gain:        gain,
					feature:     f,
					threshold:   (entries[k].v + entries[k+1].v) / 2,
					defaultLeft: defaultLeft,
				}
			}
		}
	}
	return best
}

func splitGain(gL, hL, gR, hR, parentScore float64, p Params) float64 {
	if hL < p.MinChildWeight || hR < p.MinChildWeight {
		return 0
	}
	return 0.5*(scoreOf(gL, hL, p.Lambda)+scoreOf(gR, hR, p.Lambda)-parentScore) - p.Gamma
}

func scoreOf(g, h, lambda float64) float64 {
	return g * g / (h + lambda)
}

// leafValue applies L1 soft-thresholding and L2 shrinkage to the Newton step.
func leafValue(g, h float64, p Params) float64 {
	switch {
	case g > p.Alpha:
		g -= p.Alpha
	case g < -p.Alpha:
		g += p.Alpha
	default:
		return 0
	}
	return -g / (h + p.Lambda)
}
