// Package compressor implements the Context Compressor (C3): segment
// conversation history, score each segment, select a redundancy-aware subset
// under a token budget (MMR), rewrite the subset into a dense summary
// (Chain-of-Density), and fingerprint the result as a unit-norm expectation
// vector.
package compressor

import (
	"strconv"

	"github.com/dataparency-dev/delegatecore/internal/tokenizer"
	"github.com/dataparency-dev/delegatecore/internal/types"
	"github.com/rs/zerolog/log"
)

// Compress implements the C3 contract from spec.md §4.1:
//
//	compress(history, current_task, target_tokens, namespace,
//	         preserve_system_messages) -> CompressedContext
//
// Failure modes (spec.md §4.1 "Failure modes"):
//   - history is empty: returns a CompressedContext with a zero expectation
//     vector and compression_ratio 1.0, no error.
//   - target_tokens is smaller than the token cost of the preserved system
//     messages alone: returns ErrBudgetExceeded with the minimum required
//     token count as the hint.
func Compress(history []types.Message, currentTask string, targetTokens int, namespace string, preserveSystemMessages bool) (types.CompressedContext, error) {
	est := tokenizer.NewEstimator()

	if len(history) == 0 {
		return types.CompressedContext{
			ExpectationVector: make([]float64, Dim),
			CompressionRatio:  1.0,
			Namespace:         namespace,
		}, nil
	}

	preserved, remaining := partition(history, preserveSystemMessages)

	preservedTokens := 0
	for _, p := range preserved {
		preservedTokens += est.Count(p)
	}
	if preservedTokens > targetTokens {
		return types.CompressedContext{}, types.NewCoreError(
			types.ErrBudgetExceeded,
			"target_tokens is smaller than the preserved system messages alone",
			types.WithHint("minimum_required_tokens="+strconv.Itoa(preservedTokens)),
		)
	}

	originalTokens := 0
	for _, m := range history {
		originalTokens += est.Count(m.Content)
	}

	segs := segmentAll(remaining, est)
	if len(segs) == 0 {
		return types.CompressedContext{
			PreservedSystemMessages: preserved,
			ExpectationVector:       make([]float64, Dim),
			TotalTokens:             preservedTokens,
			CompressionRatio:        ratio(preservedTokens, originalTokens),
			Namespace:               namespace,
		}, nil
	}

	taskVec := normalizeL2(hashEmbed(currentTask))
	embeddings := make([][]float64, len(segs))
	for i := range segs {
		raw := hashEmbed(segs[i].Text)
		embeddings[i] = normalizeL2(raw)
		segs[i].RelevanceScore = cosineSim(embeddings[i], taskVec)
	}

	// Step 4 caps MMR selection (and, per step 5, the summary it feeds) at
	// target_tokens * 0.6 regardless of how much room target_tokens -
	// preserved_tokens would otherwise allow (spec.md §4.1 step 4).
	densityCap := int(float64(targetTokens) * 0.6)
	selectionBudget := targetTokens - preservedTokens
	if selectionBudget > densityCap {
		selectionBudget = densityCap
	}
	if selectionBudget < 0 {
		selectionBudget = 0
	}
	chosenIdx := selectMMR(segs, embeddings, selectionBudget)
	ordered := orderSelected(segs, chosenIdx)

	summary, decisions, snippets := densityCompress(ordered, est, selectionBudget)

	// Step 6: the expectation vector is the L2-normalized sum of per-segment
	// embeddings weighted by each segment's composite selection score.
	expectation := make([]float64, Dim)
	for _, idx := range chosenIdx {
		weight := segs[idx].Composite()
		for d := 0; d < Dim; d++ {
			expectation[d] += weight * embeddings[idx][d]
		}
	}
	expectation = normalizeL2(expectation)

	totalTokens := preservedTokens + est.Count(summary)
	for _, d := range decisions {
		totalTokens += est.Count(d)
	}
	for _, s := range snippets {
		totalTokens += est.Count(s.Code)
	}

	result := types.CompressedContext{
		Summary:                 summary,
		KeyDecisions:            decisions,
		CodeSnippets:            snippets,
		PreservedSystemMessages: preserved,
		ExpectationVector:       expectation,
		TotalTokens:             totalTokens,
		CompressionRatio:        ratio(totalTokens, originalTokens),
		Namespace:               namespace,
	}

	log.Debug().
		Str("namespace", namespace).
		Int("segments", len(segs)).
		Int("selected", len(chosenIdx)).
		Int("total_tokens", totalTokens).
		Float64("compression_ratio", result.CompressionRatio).
		Msg("context_compressed")

	return result, nil
}

// ratio is the compression ratio per the glossary: original tokens divided
// by compressed tokens, so a larger value means more aggressive
// compression. An empty or trivially small compressed size still yields a
// finite ratio since total_tokens is always >= 1 once any content exists.
func ratio(compressed, original int) float64 {
	if original == 0 {
		return 1.0
	}
	if compressed == 0 {
		compressed = 1
	}
	return float64(original) / float64(compressed)
}
