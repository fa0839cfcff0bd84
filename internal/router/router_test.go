package router

import (
	"testing"

	"github.com/dataparency-dev/delegatecore/internal/registry"
	"github.com/dataparency-dev/delegatecore/internal/types"
	"github.com/stretchr/testify/require"
)

func sampleRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	models := []types.ModelSpec{
		{ModelID: "free-general-a", IsFree: true, Priority: 1, MaxTokens: 32000,
			TaskAffinities: []types.TaskKind{types.TaskGeneral, types.TaskCodeGeneration, types.TaskCodeReview,
				types.TaskDocumentParsing, types.TaskAgenticComplex, types.TaskAgenticSimple,
				types.TaskVisionLanguage, types.TaskDeepReasoning}},
		{ModelID: "free-general-b", IsFree: true, Priority: 2, MaxTokens: 32000,
			TaskAffinities: []types.TaskKind{types.TaskGeneral, types.TaskCodeGeneration}},
		{ModelID: "paid-premium", IsFree: false, Priority: 1, MaxTokens: 200000,
			InputPricePerMegatoken: 15, OutputPricePerMegatoken: 75,
			TaskAffinities: []types.TaskKind{types.TaskCodeGeneration, types.TaskDeepReasoning, types.TaskGeneral}},
	}
	reg, err := registry.New(models)
	require.NoError(t, err)
	return reg
}

func TestClassify_OrderedRules(t *testing.T) {
	cases := map[string]types.TaskKind{
		"please parse this pdf and extract the table":        types.TaskDocumentParsing,
		"what does this screenshot diagram show":              types.TaskVisionLanguage,
		"orchestrate a complex multi-step autonomous workflow": types.TaskAgenticComplex,
		"prove this mathematical claim formally":               types.TaskDeepReasoning,
		"review this code for bugs":                            types.TaskCodeReview,
		"implement a function to parse headers":                types.TaskCodeGeneration,
		"automate this script task":                            types.TaskAgenticSimple,
		"what's the weather like":                              types.TaskGeneral,
	}
	for prompt, want := range cases {
		got := Classify(prompt)
		require.Equalf(t, want, got, "prompt=%q", prompt)
	}
}

func TestRoute_PrefersFreePool(t *testing.T) {
	reg := sampleRegistry(t)
	routing, err := Route(reg, "implement a function", types.Policy{PreferFree: true, MaxInputTokens: 1000})
	require.NoError(t, err)
	require.Equal(t, types.TaskCodeGeneration, routing.Kind)
	require.True(t, routing.Model.IsFree)
	require.Equal(t, "free-general-a", routing.Model.ModelID)
}

func TestRoute_FallsBackToPaidWhenAllowed(t *testing.T) {
	reg := sampleRegistry(t)
	policy := types.Policy{PreferFree: false, AllowPremium: true, MaxInputTokens: 1000}
	routing, err := Route(reg, "implement a function", policy)
	require.NoError(t, err)
	require.Equal(t, "paid-premium", routing.Model.ModelID)
}

func TestRoute_NoEligibleModelWhenPremiumDisallowed(t *testing.T) {
	reg := sampleRegistry(t)
	policy := types.Policy{PreferFree: false, AllowPremium: false, MaxInputTokens: 1000}
	_, err := Route(reg, "implement a function", policy)
	require.Error(t, err)
	coreErr, ok := err.(*types.CoreError)
	require.True(t, ok)
	require.Equal(t, types.ErrNoEligibleModel, coreErr.Kind)
}

func TestRoute_DeterministicOrderByPriority(t *testing.T) {
	reg := sampleRegistry(t)
	routing, err := Route(reg, "let's do something generic", types.Policy{PreferFree: true, MaxInputTokens: 1000})
	require.NoError(t, err)
	// free-general-a has priority 1, free-general-b priority 2 -> "a" wins on
	// priority alone, not a tie, but confirms deterministic ordering holds.
	require.Equal(t, "free-general-a", routing.Model.ModelID)
}

func TestRoute_ExcludedModelIsSkipped(t *testing.T) {
	reg := sampleRegistry(t)
	policy := types.Policy{
		PreferFree:      true,
		MaxInputTokens:  1000,
		ExcludeModelIDs: map[string]struct{}{"free-general-a": {}},
	}
	routing, err := Route(reg, "implement a function", policy)
	require.NoError(t, err)
	require.Equal(t, "free-general-b", routing.Model.ModelID)
}
