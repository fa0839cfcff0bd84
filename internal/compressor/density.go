package compressor

import (
	"sort"
	"strings"
	"unicode"

	"github.com/dataparency-dev/delegatecore/internal/tokenizer"
	"github.com/dataparency-dev/delegatecore/internal/types"
)

// orderSelected returns the selected segments in original chronological
// order (spec.md §4.1 step 5: "Concatenate selected segments in original
// order").
func orderSelected(segs []types.Segment, chosen []int) []types.Segment {
	ordered := make([]types.Segment, len(chosen))
	for i, idx := range chosen {
		ordered[i] = segs[idx]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SourceIndex < ordered[j].SourceIndex
	})
	return ordered
}

// densityCompress implements the Chain-of-Density two-pass rewrite
// (spec.md §4.1 step 5). Pass A extracts key_decisions and code_snippets
// verbatim; pass B rewrites the remaining prose into a dense summary within
// whatever token budget is left over.
func densityCompress(ordered []types.Segment, est *tokenizer.Estimator, totalBudget int) (summary string, decisions []string, snippets []types.CodeSnippet) {
	var proseSegs []types.Segment
	usedTokens := 0

	for _, seg := range ordered {
		switch seg.Kind {
		case types.SegmentDecision:
			decisions = append(decisions, toDecisionStatement(seg.Text))
			usedTokens += seg.TokenCount
		case types.SegmentCode:
			lang, code := splitFenced(seg.Text)
			snippets = append(snippets, types.CodeSnippet{Language: lang, Code: code, Provenance: seg.ID})
			usedTokens += seg.TokenCount
		default:
			proseSegs = append(proseSegs, seg)
		}
	}

	remainingBudget := totalBudget - usedTokens
	if remainingBudget < 0 {
		remainingBudget = 0
	}
	summary = summarizeProse(proseSegs, est, remainingBudget)
	return summary, decisions, snippets
}

// toDecisionStatement renders a decision segment as a single sentence with a
// leading verb (spec.md §4.1 step 5 pass A).
func toDecisionStatement(text string) string {
	sentence := firstSentence(text)
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return sentence
	}

	lower := strings.ToLower(sentence)
	leadingVerbs := []string{"decided", "will", "chose", "chosen", "going with", "adopted", "selected", "settled on"}
	for _, v := range leadingVerbs {
		if strings.HasPrefix(lower, v) {
			return capitalize(sentence)
		}
	}
	// No leading verb detected in the source text — synthesize one so the
	// output satisfies "decisions as single-sentence statements with
	// leading verb".
	return "Decided: " + capitalize(sentence)
}

func firstSentence(text string) string {
	for i, r := range text {
		if r == '.' || r == '!' || r == '\n' {
			return text[:i+1]
		}
		_ = i
	}
	return text
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func splitFenced(text string) (lang, code string) {
	trimmed := strings.TrimPrefix(text, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	nl := strings.IndexByte(trimmed, '\n')
	if nl < 0 {
		return "", trimmed
	}
	return trimmed[:nl], trimmed[nl+1:]
}

// summarizeProse rewrites prose segments into a dense summary: every
// retained sentence must contain at least one concrete noun phrase (proxied
// here, deterministically, by a capitalized word, a quoted identifier, or a
// digit — spec.md §4.1 step 5 pass B "density heuristic"). Sentences are
// taken in order until the token budget is exhausted.
func summarizeProse(segs []types.Segment, est *tokenizer.Estimator, budget int) string {
	var kept []string
	used := 0

	for _, seg := range segs {
		for _, sentence := range splitSentences(seg.Text) {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" || !hasConcreteNounCue(sentence) {
				continue
			}
			cost := est.Count(sentence)
			if used+cost > budget {
				return strings.Join(kept, " ")
			}
			kept = append(kept, sentence)
			used += cost
		}
	}
	return strings.Join(kept, " ")
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentences = append(sentences, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func hasConcreteNounCue(sentence string) bool {
	words := strings.Fields(sentence)
	for i, w := range words {
		clean := strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if clean == "" {
			continue
		}
		if i > 0 && unicode.IsUpper([]rune(clean)[0]) {
			return true // mid-sentence capitalization suggests a proper noun
		}
		for _, r := range clean {
			if unicode.IsDigit(r) {
				return true
			}
		}
		if strings.ContainsAny(w, "`\"") {
			return true // quoted/backticked identifier
		}
	}
	return false
}

