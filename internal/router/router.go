// Package router implements the Specialized Task Router (C4): classify a
// prompt into a TaskKind via a fixed ordered rule table, then select an
// eligible model deterministically from the registry under the caller's
// policy.
package router

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dataparency-dev/delegatecore/internal/registry"
	"github.com/dataparency-dev/delegatecore/internal/types"
	"github.com/rs/zerolog/log"
)

// Routing is the result of route(): the chosen model, the TaskKind it was
// matched against, and a short human-readable justification.
type Routing struct {
	Model     types.ModelSpec
	Kind      types.TaskKind
	Reasoning string
}

type rule struct {
	kind  types.TaskKind
	match func(lower string) bool
}

// classificationRules is the fixed, ordered table from spec.md §4.2. Rules
// are evaluated top-to-bottom; the first match wins.
var classificationRules = []rule{
	{types.TaskDocumentParsing, func(l string) bool {
		return containsAny(l, "parse", "extract") && containsAny(l, "pdf", "document", "table", "ocr")
	}},
	{types.TaskVisionLanguage, func(l string) bool {
		return containsAny(l, "image", "screenshot", "diagram", "chart", "vision")
	}},
	{types.TaskAgenticComplex, func(l string) bool {
		return containsAny(l, "orchestrate", "coordinate", "multi-step", "autonomous") &&
			containsAny(l, "complex", "advanced", "system")
	}},
	{types.TaskDeepReasoning, func(l string) bool {
		return containsAny(l, "prove", "mathematical", "formal", "deduce")
	}},
	{types.TaskCodeReview, func(l string) bool {
		return containsAny(l, "review", "audit", "bug", "issue") && hasCodeCue(l)
	}},
	{types.TaskCodeGeneration, func(l string) bool {
		return containsAny(l, "implement", "create", "build", "write") && hasCodeCue(l)
	}},
	{types.TaskAgenticSimple, func(l string) bool {
		return containsAny(l, "automate", "script", "task")
	}},
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// hasCodeCue is the "code cue" referenced by the code_review and
// code_generation rules: mention of code, a function/class/endpoint, or a
// common language name.
func hasCodeCue(lower string) bool {
	return containsAny(lower, "code", "function", "class", "endpoint", "method",
		"api", "module", "package", "go", "python", "javascript", "typescript")
}

// Classify assigns a TaskKind to prompt per the fixed ordered rule table,
// falling back to TaskGeneral when nothing matches.
func Classify(prompt string) types.TaskKind {
	lower := strings.ToLower(prompt)
	for _, r := range classificationRules {
		if r.match(lower) {
			return r.kind
		}
	}
	return types.TaskGeneral
}

// Route implements the C4 contract: route(prompt, policy) -> (ModelSpec,
// TaskKind, reasoning).
func Route(reg *registry.Registry, prompt string, policy types.Policy) (Routing, error) {
	kind := policy.OverrideKind
	if kind == "" {
		kind = Classify(prompt)
	}

	candidates := reg.Eligible(kind, policy.MaxInputTokens, policy.ExcludeModelIDs)
	if len(candidates) == 0 {
		return Routing{}, types.NewCoreError(
			types.ErrNoEligibleModel,
			"no model satisfies task kind "+string(kind)+" and the given policy",
			types.WithHint("widen policy, e.g. allow_premium=true or raise max_input_tokens"),
		)
	}

	free, paid := partitionByPrice(candidates)

	var pool []types.ModelSpec
	poolLabel := "free"
	if policy.PreferFree && len(free) > 0 {
		pool = free
	} else if policy.AllowPremium && len(paid) > 0 {
		pool = paid
		poolLabel = "paid"
	} else {
		return Routing{}, types.NewCoreError(
			types.ErrNoEligibleModel,
			"no eligible model for task kind "+string(kind)+" under the given policy",
			types.WithHint("widen policy, e.g. allow_premium=true or raise max_input_tokens"),
		)
	}

	if policy.ScoringMode == types.ScoringWeighted {
		pool = weightedOrder(pool)
	}

	winner := pool[0]
	reasoning := "classified as " + string(kind) + "; " + strconv.Itoa(len(pool)) + " candidate(s) in the " +
		poolLabel + " pool; selected " + winner.ModelID + " at priority " + strconv.Itoa(winner.Priority)

	log.Debug().
		Str("kind", string(kind)).
		Str("model_id", winner.ModelID).
		Int("candidates", len(pool)).
		Str("pool", poolLabel).
		Msg("task_routed")

	return Routing{Model: winner, Kind: kind, Reasoning: reasoning}, nil
}

func partitionByPrice(models []types.ModelSpec) (free, paid []types.ModelSpec) {
	for _, m := range models {
		if m.IsFree {
			free = append(free, m)
		} else {
			paid = append(paid, m)
		}
	}
	return free, paid
}

// weightedOrder re-sorts a pool using the multi-objective weighting scheme
// (cost/speed/trust/confidence/capability-match generalized to cost and
// priority here, since the router has no live speed/trust signal). It never
// changes pool membership — only order within it — so it can never violate
// the router's coverage or determinism guarantees (spec.md §8.4): given the
// same pool contents, the weighted order is itself a deterministic function
// of (cost, priority, model_id).
func weightedOrder(pool []types.ModelSpec) []types.ModelSpec {
	out := make([]types.ModelSpec, len(pool))
	copy(out, pool)

	minCost, maxCost := pool[0].InputPricePerMegatoken, pool[0].InputPricePerMegatoken
	for _, m := range pool {
		if m.InputPricePerMegatoken < minCost {
			minCost = m.InputPricePerMegatoken
		}
		if m.InputPricePerMegatoken > maxCost {
			maxCost = m.InputPricePerMegatoken
		}
	}

	score := func(m types.ModelSpec) float64 {
		costScore := 1.0
		if maxCost > minCost {
			costScore = 1.0 - (m.InputPricePerMegatoken-minCost)/(maxCost-minCost)
		}
		priorityScore := 1.0 / float64(m.Priority)
		return 0.5*costScore + 0.5*priorityScore
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := score(out[i]), score(out[j])
		if si != sj {
			return si > sj
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ModelID < out[j].ModelID
	})
	return out
}
