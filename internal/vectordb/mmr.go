package vectordb

import "math"

// CosineSim computes cosine similarity between two float32 vectors
func CosineSim(a, b []float32) float64 {
	var dot, na, nb float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		da, db := float64(a[i]), float64(b[i])
		dot += da * db
		na += da * da
		nb += db * db
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MMRReorder greedily reorders candidates trading relevance to query
// against similarity to already selected points.
func MMRReorder(query []float32, items []Point, lambda float64) []Point {
	lambda = math.Max(0, math.Min(1, lambda))
	n := len(items)
	if n <= 1 {
		return items
	}
	qd := make([]float64, n)
	for i := range items {
		qd[i] = CosineSim(query, items[i].Vector)
	}
	selected := make([]int, 0, n)
	remaining := make([]bool, n)
	for i := range remaining {
		remaining[i] = true
	}
	for len(selected) < n {
		bestIdx, bestScore := -1, math.Inf(-1)
		for i := 0; i < n; i++ {
			if !remaining[i] {
				continue
			}
			maxDiv := 0.0
			for _, s := range selected {
				maxDiv = math.Max(maxDiv, CosineSim(items[i].Vector, items[s].Vector))
			}
			if score := lambda*qd[i] - (1.0-lambda)*maxDiv; score > bestScore {
				bestScore, bestIdx = score, i
			}
		}
		selected = append(selected, bestIdx)
		remaining[bestIdx] = false
	}
	out := make([]Point, 0, n)
	for _, idx := range selected {
		out = append(out, items[idx])
	}
	return out
}
