package registry

import (
	"testing"

	"github.com/dataparency-dev/delegatecore/internal/types"
	"github.com/stretchr/testify/require"
)

func allKindsFreeModel(id string, priority int) types.ModelSpec {
	return types.ModelSpec{
		ModelID: id, IsFree: true, Priority: priority, MaxTokens: 32000,
		TaskAffinities: []types.TaskKind{
			types.TaskGeneral, types.TaskCodeGeneration, types.TaskCodeReview,
			types.TaskDocumentParsing, types.TaskAgenticComplex, types.TaskAgenticSimple,
			types.TaskVisionLanguage, types.TaskDeepReasoning,
		},
	}
}

func TestNew_RejectsDuplicateModelID(t *testing.T) {
	_, err := New([]types.ModelSpec{allKindsFreeModel("dup", 1), allKindsFreeModel("dup", 2)})
	require.Error(t, err)
}

func TestNew_RejectsMissingFreeCoverage(t *testing.T) {
	_, err := New([]types.ModelSpec{
		{ModelID: "paid-only", IsFree: false, Priority: 1, MaxTokens: 32000, TaskAffinities: []types.TaskKind{types.TaskGeneral}},
	})
	require.Error(t, err)
}

func TestEligible_FiltersByAffinityTokensAndExclusion(t *testing.T) {
	reg, err := New([]types.ModelSpec{allKindsFreeModel("a", 2), allKindsFreeModel("b", 1)})
	require.NoError(t, err)

	out := reg.Eligible(types.TaskCodeGeneration, 1000, map[string]struct{}{"b": {}})
	require.Len(t, out, 1)
	require.Equal(t, "a", out[0].ModelID)
}

func TestEligible_SortsByPriorityThenModelID(t *testing.T) {
	reg, err := New([]types.ModelSpec{allKindsFreeModel("z", 1), allKindsFreeModel("a", 1)})
	require.NoError(t, err)

	out := reg.Eligible(types.TaskGeneral, 1000, nil)
	require.Len(t, out, 2)
	require.Equal(t, "a", out[0].ModelID)
	require.Equal(t, "z", out[1].ModelID)
}

func TestGet_ReturnsModelByID(t *testing.T) {
	reg, err := New([]types.ModelSpec{allKindsFreeModel("a", 1)})
	require.NoError(t, err)

	m, ok := reg.Get("a")
	require.True(t, ok)
	require.Equal(t, "a", m.ModelID)

	_, ok = reg.Get("missing")
	require.False(t, ok)
}
