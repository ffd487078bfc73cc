package vectorstore

import "math"

// Cosine 余弦相似度，任一向量为零向量时返回 0
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MMR 最大边际相关性重排，返回被选中候选的下标。
// lambda 越大越偏向相关性，越小越偏向多样性。
func MMR(query []float32, candidates [][]float32, k int, lambda float64) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))

	relevance := make([]float64, len(candidates))
	picked := make([]bool, len(candidates))
	for i, c := range candidates {
		relevance[i] = Cosine(query, c)
		// 含 NaN 的向量无法比较，直接排除
		if math.IsNaN(relevance[i]) {
			picked[i] = true
		}
	}

	selected := make([]int, 0, k)
	// maxSim[i] 候选 i 与已选集合的最大相似度
	maxSim := make([]float64, len(candidates))
	for i := range maxSim {
		maxSim[i] = math.Inf(-1)
	}
	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if picked[i] {
				continue
			}
			score := lambda * relevance[i]
			if len(selected) > 0 {
				score -= (1 - lambda) * maxSim[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		picked[best] = true
		selected = append(selected, best)
		for i := range candidates {
			if !picked[i] {
				maxSim[i] = math.Max(maxSim[i], Cosine(candidates[i], candidates[best]))
			}
		}
	}
	return selected
}
