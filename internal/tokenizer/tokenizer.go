// Package tokenizer implements the core's token estimator and cost meter
// (C1). Both are pure, deterministic functions over text and a ModelSpec;
// price lookups are memoized in a short-lived cache since the same
// (model_id, input_tokens, output_tokens) triple is queried repeatedly
// within a single orchestration run.
package tokenizer

import (
	"fmt"
	"time"
	"unicode"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/dataparency-dev/delegatecore/internal/types"
)

// avgCharsPerToken approximates the characters-per-token ratio of common
// subword tokenizers for English-dominant technical prose. This is an
// estimate, not a provider-exact count — the core never calls out to a
// tokenizer service (spec.md §1, §6: the only external dependency is
// ModelClient.complete, which itself reports exact input/output token
// counts after the fact).
const avgCharsPerToken = 3.6

// Estimator counts tokens for arbitrary text.
type Estimator struct{}

// NewEstimator constructs a token estimator.
func NewEstimator() *Estimator { return &Estimator{} }

// Count estimates the token count of text. The estimate is deterministic:
// same input always yields the same output, which the compressor relies on
// for its determinism invariant (spec.md §8.2).
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}

	// Estimate from the character count, adding half a token per code
	// punctuation rune since punctuation-heavy code splits into more
	// subword tokens per character than prose; the whitespace-delimited
	// word count is used as a floor.
	words := 0
	runes := 0
	codePunct := 0
	inWord := false
	for _, r := range text {
		runes++
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
		if isCodePunct(r) {
			codePunct++
		}
	}
	if runes == 0 {
		return 0
	}

	estimate := float64(runes)/avgCharsPerToken + float64(codePunct)*0.5
	count := int(estimate)
	if count < words {
		// A token boundary cannot be coarser than a whitespace boundary in
		// the overwhelming majority of subword tokenizers.
		count = words
	}
	if count == 0 {
		count = 1
	}
	return count
}

func isCodePunct(r rune) bool {
	switch r {
	case '{', '}', '(', ')', '[', ']', '<', '>', ';', ':', '=', '+', '-', '*', '/', '&', '|', '.', ',':
		return true
	default:
		return false
	}
}

// CostMeter computes monetary cost for a (model, input_tokens, output_tokens)
// triple using the registry's price table.
type CostMeter struct {
	priceCache *cache.Cache
}

// NewCostMeter constructs a cost meter with a short-lived price memoization
// cache — prices are immutable per ModelSpec, so a cache hit is always
// identical to a fresh computation; this only saves the arithmetic.
func NewCostMeter() *CostMeter {
	return &CostMeter{
		priceCache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// Cost computes the dollar cost of a completion against model spec m.
func (c *CostMeter) Cost(m types.ModelSpec, inputTokens, outputTokens int) float64 {
	if m.IsFree {
		return 0
	}

	key := fmt.Sprintf("%s:%d:%d", m.ModelID, inputTokens, outputTokens)
	if cached, ok := c.priceCache.Get(key); ok {
		log.Debug().Str("model_id", m.ModelID).Msg("cost_meter_cache_hit")
		return cached.(float64)
	}

	inCost := float64(inputTokens) / 1_000_000 * m.InputPricePerMegatoken
	outCost := float64(outputTokens) / 1_000_000 * m.OutputPricePerMegatoken
	total := inCost + outCost

	c.priceCache.Set(key, total, cache.DefaultExpiration)
	return total
}
