package compressor

import "github.com/dataparency-dev/delegatecore/internal/types"

const mmrLambda = 0.7

// selectMMR runs Maximal Marginal Relevance selection (spec.md §4.1 step 4):
// iteratively pick the segment maximizing λ·s − (1−λ)·max_sim(segment,
// already_selected) until adding the next pick would exceed tokenBudget.
// embeddings must be indexed the same way as segs (same length, same order)
// and is used only for the redundancy term — selection order depends on
// segment content only, never on map iteration, so results are deterministic.
func selectMMR(segs []types.Segment, embeddings [][]float64, tokenBudget int) []int {
	n := len(segs)
	chosen := make([]int, 0, n)
	used := make([]bool, n)
	usedTokens := 0

	for len(chosen) < n {
		bestIdx := -1
		bestScore := -2.0 // composite/similarity terms are bounded in [-1, 1]

		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, c := range chosen {
				sim := cosineSim(embeddings[i], embeddings[c])
				if sim > maxSim {
					maxSim = sim
				}
			}
			score := mmrLambda*segs[i].Composite() - (1-mmrLambda)*maxSim

			// Deterministic tie-break: lower SourceIndex first, then
			// smaller original slice index — both are stable properties of
			// the input, never of map/iteration order.
			if score > bestScore || (score == bestScore && bestIdx != -1 && tiesBefore(segs, i, bestIdx)) {
				bestScore = score
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			break
		}
		if usedTokens+segs[bestIdx].TokenCount > tokenBudget {
			break
		}

		used[bestIdx] = true
		chosen = append(chosen, bestIdx)
		usedTokens += segs[bestIdx].TokenCount
	}

	return chosen
}

func tiesBefore(segs []types.Segment, a, b int) bool {
	if segs[a].SourceIndex != segs[b].SourceIndex {
		return segs[a].SourceIndex < segs[b].SourceIndex
	}
	return a < b
}
