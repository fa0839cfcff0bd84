package validator

import (
	"testing"

	"github.com/dataparency-dev/delegatecore/internal/types"
	"github.com/stretchr/testify/require"
)

const goodOutput = "```go\n" + `
// Len returns the number of items currently buffered.
func Len(buf []int) int {
	if buf == nil {
		return 0
	}
	return len(buf)
}
` + "\n```\nThis handles the empty/nil buffer edge case and returns 0. No external secrets are used. A mock test can assert Len(nil) == 0 via an injected interface."

func TestValidate_GoodOutputScoresHigh(t *testing.T) {
	result := Validate("implement a function Len that counts buffered items", goodOutput, 80, 0)
	require.GreaterOrEqual(t, result.Score, 60)
	require.NotContains(t, result.Issues, "unparseable output")
}

func TestValidate_UnparseableOutputScoresZeroCorrectness(t *testing.T) {
	result := Validate("implement a function", "```go\nfunc broken( {\n", 80, 0)
	require.Equal(t, 0, result.Breakdown.Correctness)
	require.Contains(t, result.Issues, "unparseable output")
}

func TestValidate_UndeterminedLanguageCapsCorrectness(t *testing.T) {
	result := Validate("write something", "just plain prose with no code fences at all", 80, 0)
	require.LessOrEqual(t, result.Breakdown.Correctness, 20)
	require.Contains(t, result.Issues, "language undetermined")
}

func TestValidate_PlaceholderTokensLowerCompleteness(t *testing.T) {
	withPlaceholder := Validate("implement a function", "```go\nfunc Foo() { // TODO: implement\n}\n```", 80, 0)
	require.Less(t, withPlaceholder.Breakdown.Completeness, 30)
}

func TestValidate_SecretsLowerProductionReadiness(t *testing.T) {
	withSecret := Validate("implement a function", "```go\napi_key = \"abcd1234efgh5678\"\n```", 80, 0)
	require.Less(t, withSecret.Breakdown.ProductionReady, 20)
}

func TestValidate_FixTierEscalatesByAttemptIndex(t *testing.T) {
	first := Validate("implement a function", "", 80, 1)
	second := Validate("implement a function", "", 80, 2)
	third := Validate("implement a function", "", 80, 3)

	require.Equal(t, types.FixTierBroad, first.FixTier)
	require.Equal(t, types.FixTierSpecific, second.FixTier)
	require.Equal(t, types.FixTierExact, third.FixTier)
}

func TestValidate_BelowThresholdProducesFixInstructions(t *testing.T) {
	result := Validate("implement a function", "too short", 80, 1)
	require.NotEmpty(t, result.FixInstructions)
}

func TestValidate_AtOrAboveThresholdSkipsFixInstructions(t *testing.T) {
	result := Validate("implement a function Len", goodOutput, 1, 0)
	require.Empty(t, result.FixInstructions)
}
