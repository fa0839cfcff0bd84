package compressor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dataparency-dev/delegatecore/internal/tokenizer"
	"github.com/dataparency-dev/delegatecore/internal/types"
)

var fencedCodeRe = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\\n(.*?)```")

// partition splits history into (preservedSystemMessages, remaining) per
// spec.md §4.1 step 1. When preserveSystemMessages is false, no messages are
// extracted and all of history flows into segmentation.
func partition(history []types.Message, preserveSystemMessages bool) (preserved []string, remaining []types.Message) {
	if !preserveSystemMessages {
		return nil, history
	}
	for _, m := range history {
		if m.Role == types.RoleSystem && m.Preserve {
			preserved = append(preserved, m.Content)
			continue
		}
		remaining = append(remaining, m)
	}
	return preserved, remaining
}

// segmentAll splits remaining history into Segments by message boundary,
// fenced code regions within a message, and paragraph boundaries within the
// remaining prose (spec.md §4.1 step 2).
func segmentAll(remaining []types.Message, est *tokenizer.Estimator) []types.Segment {
	var segs []types.Segment
	n := len(remaining)

	for idx, msg := range remaining {
		recency := recencyScore(idx, n)
		pieces := splitMessage(msg.Content)
		for _, p := range pieces {
			if strings.TrimSpace(p.text) == "" {
				continue
			}
			kind := p.kind
			if kind == "" {
				kind = classifyProse(p.text)
			}
			segs = append(segs, types.Segment{
				ID:             fmt.Sprintf("seg-%d-%d", idx, len(segs)),
				Text:           p.text,
				TokenCount:     est.Count(p.text),
				Kind:           kind,
				RecencyScore:   recency,
				TypeScore:      typeScore(kind),
				SourceIndex:    idx,
			})
		}
	}
	return segs
}

type piece struct {
	text string
	kind types.SegmentKind // empty means "classify from prose"
}

// splitMessage breaks one message's content into fenced-code pieces and the
// surrounding prose split by blank-line paragraph boundaries.
func splitMessage(content string) []piece {
	var out []piece
	last := 0
	for _, loc := range fencedCodeRe.FindAllStringSubmatchIndex(content, -1) {
		if loc[0] > last {
			out = append(out, paragraphPieces(content[last:loc[0]])...)
		}
		lang := content[loc[2]:loc[3]]
		code := content[loc[4]:loc[5]]
		out = append(out, piece{text: fmt.Sprintf("```%s\n%s```", lang, code), kind: types.SegmentCode})
		last = loc[1]
	}
	if last < len(content) {
		out = append(out, paragraphPieces(content[last:])...)
	}
	return out
}

func paragraphPieces(text string) []piece {
	var out []piece
	for _, para := range strings.Split(text, "\n\n") {
		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			continue
		}
		out = append(out, piece{text: trimmed})
	}
	return out
}

// classifyProse assigns exactly one SegmentKind to a non-code piece of text
// using fixed keyword heuristics (spec.md §4.1 step 2: "Each segment is
// classified into exactly one kind").
func classifyProse(text string) types.SegmentKind {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "error:", "exception", "panic:", "traceback", "failed with", "stack trace"):
		return types.SegmentError
	case containsAny(lower, "decided to", "we will", "i will", "the plan is", "going with", "chosen approach", "decision:"):
		return types.SegmentDecision
	case containsAny(lower, "because", "therefore", "this means", "in order to", "the reason", "since "):
		return types.SegmentReasoning
	default:
		return types.SegmentNarrative
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// recencyScore implements the linear decay over position described in
// spec.md §4.1 step 3: newest message scores 1.0, oldest scores the lowest
// non-negative value on the line.
func recencyScore(index, total int) float64 {
	if total <= 1 {
		return 1.0
	}
	return float64(index) / float64(total-1)
}

// typeScore is the fixed table from spec.md §4.1 step 3.
func typeScore(kind types.SegmentKind) float64 {
	switch kind {
	case types.SegmentDecision:
		return 1.0
	case types.SegmentCode:
		return 0.9
	case types.SegmentError:
		return 0.8
	case types.SegmentReasoning:
		return 0.6
	case types.SegmentNarrative:
		return 0.3
	default:
		return 0.3
	}
}
