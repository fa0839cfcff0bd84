// Package validator implements the Output Validator (C5): a stateless,
// deterministic rubric scorer over generated output. C5 never tracks retry
// counts itself — fix_tier is derived from the attempt_index the caller
// (C6) supplies.
package validator

import (
	"regexp"
	"strings"

	"github.com/dataparency-dev/delegatecore/internal/types"
)

var (
	placeholderRe = regexp.MustCompile(`(?i)TODO|FIXME|\.\.\.implementation\.\.\.|not implemented|placeholder`)
	docCommentRe  = regexp.MustCompile(`(?m)^\s*(//|#|/\*|""")`)
	secretRe      = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*["'][A-Za-z0-9_\-]{8,}["']`)
	errorHandleRe = regexp.MustCompile(`(?i)\b(try|catch|except|error|err\s*!=\s*nil|rescue|panic|recover)\b`)
	testHintRe    = regexp.MustCompile(`(?i)\b(test|assert|expect|mock|spec)\b`)
	seamRe        = regexp.MustCompile(`(?i)\b(interface|inject|config|dependency|constructor|factory)\b`)
	funcNameRe    = regexp.MustCompile(`(?i)\b(func|def|function|class)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	typeAnnotRe   = regexp.MustCompile(`:\s*[A-Za-z_][A-Za-z0-9_\[\]]*\s*[,)=]|->\s*[A-Za-z_]`)
)

var languageFences = map[string]*regexp.Regexp{
	"go":         regexp.MustCompile("```go"),
	"python":     regexp.MustCompile("```python|```py"),
	"javascript": regexp.MustCompile("```javascript|```js"),
	"typescript": regexp.MustCompile("```typescript|```ts"),
}

// Validate implements the C5 contract: validate(task, output, threshold,
// attempt_index) -> ValidationResult. threshold and attemptIndex are
// supplied by the caller (C6); C5 holds no state across calls.
func Validate(task, output string, threshold int, attemptIndex int) types.ValidationResult {
	lang := detectLanguage(output)

	completeness := scoreCompleteness(task, output)
	correctness, issues := scoreCorrectness(task, output, lang)
	production := scoreProductionReadiness(output)

	breakdown := types.ScoreBreakdown{
		Completeness:    completeness,
		Correctness:     correctness,
		ProductionReady: production,
	}
	score := breakdown.Sum()

	if lang == "" {
		issues = append(issues, "language undetermined")
	}

	tier := fixTierForAttempt(attemptIndex)
	result := types.ValidationResult{
		Score:     score,
		Breakdown: breakdown,
		Issues:    issues,
		FixTier:   tier,
	}
	if score < threshold {
		result.FixInstructions = buildFixInstructions(tier, issues, task)
	}
	return result
}

func scoreCompleteness(task, output string) int {
	score := 0
	if componentsPresent(task, output) {
		score += 15
	}
	if !placeholderRe.MatchString(output) {
		score += 10
	}
	if docCommentRe.MatchString(output) {
		score += 5
	}
	return score
}

// componentsPresent checks that the output is non-trivial relative to the
// task: it must be substantially longer than a one-line stub and echo at
// least one significant word from the task prompt.
func componentsPresent(task, output string) bool {
	trimmed := strings.TrimSpace(output)
	if len(trimmed) < 40 {
		return false
	}
	for _, word := range strings.Fields(task) {
		w := strings.ToLower(strings.Trim(word, ".,:;!?\"'()"))
		if len(w) < 4 {
			continue
		}
		if strings.Contains(strings.ToLower(output), w) {
			return true
		}
	}
	return false
}

func scoreCorrectness(task, output, lang string) (int, []string) {
	var issues []string

	if lang == "" {
		return 20, issues
	}
	if !attemptParse(output, lang) {
		issues = append(issues, "unparseable output")
		return 0, issues
	}

	score := 10 // parse succeeded

	requiredNames := extractRequiredNames(task)
	if matchesRequiredNames(output, requiredNames) {
		score += 15
	} else if len(requiredNames) > 0 {
		issues = append(issues, "missing required function/class/endpoint names from task")
	} else {
		score += 15 // no specific names required
	}

	if containsAny(strings.ToLower(output), "edge case", "corner case", "boundary", "empty input", "nil", "null") {
		score += 10
	} else {
		issues = append(issues, "no edge cases mentioned")
	}

	if requiresTypes(task) {
		if typeAnnotRe.MatchString(output) {
			score += 5
		} else {
			issues = append(issues, "missing explicit types/annotations")
		}
	} else {
		score += 5
	}

	return score, issues
}

func scoreProductionReadiness(output string) int {
	score := 0
	if errorHandleRe.MatchString(output) {
		score += 10
	}
	if !secretRe.MatchString(output) {
		score += 10
	}
	if testHintRe.MatchString(output) {
		score += 5
	}
	if seamRe.MatchString(output) {
		score += 5
	}
	return score
}

func detectLanguage(output string) string {
	for lang, re := range languageFences {
		if re.MatchString(output) {
			return lang
		}
	}
	return ""
}

// attemptParse is a lightweight structural parse check (balanced braces and
// at least one recognizable construct), not a real compiler front end —
// spec.md §4.4 requires determinism and "no external calls", which rules
// out invoking a language-specific parser/toolchain.
func attemptParse(output, lang string) bool {
	depth := 0
	for _, r := range output {
		switch r {
		case '{', '(', '[':
			depth++
		case '}', ')', ']':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	if depth != 0 {
		return false
	}
	return funcNameRe.MatchString(output) || strings.Contains(output, "```")
}

func extractRequiredNames(task string) []string {
	matches := funcNameRe.FindAllStringSubmatch(task, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[2])
	}
	return names
}

func matchesRequiredNames(output string, names []string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if strings.Contains(output, n) {
			return true
		}
	}
	return false
}

func requiresTypes(task string) bool {
	lower := strings.ToLower(task)
	return containsAny(lower, "type", "typed", "annotation", "interface", "schema", "struct")
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// fixTierForAttempt maps the caller-supplied attempt index to a fix tier
// (spec.md §4.3 fix instruction tiers table). attemptIndex 0 means "first
// attempt, no prior failure" and is treated the same as a first retry.
func fixTierForAttempt(attemptIndex int) types.FixTier {
	switch {
	case attemptIndex <= 1:
		return types.FixTierBroad
	case attemptIndex == 2:
		return types.FixTierSpecific
	default:
		return types.FixTierExact
	}
}

func buildFixInstructions(tier types.FixTier, issues []string, task string) string {
	var b strings.Builder
	switch tier {
	case types.FixTierBroad:
		b.WriteString("Missing or incomplete components detected. Address the following at a high level: ")
	case types.FixTierSpecific:
		b.WriteString("Apply concrete fixes, including function signatures and stub structure, for: ")
	case types.FixTierExact:
		b.WriteString("Apply line-level corrections referencing the failing output for: ")
	}
	b.WriteString(strings.Join(issues, "; "))
	return b.String()
}
