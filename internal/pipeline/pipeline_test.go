package pipeline

import (
	"context"
	"testing"

	"github.com/dataparency-dev/delegatecore/internal/continuity"
	"github.com/dataparency-dev/delegatecore/internal/registry"
	"github.com/dataparency-dev/delegatecore/internal/types"
	"github.com/stretchr/testify/require"
)

type mockClient struct{ text string }

func (m *mockClient) Complete(ctx context.Context, prompt, modelID string, maxTokens int, temperature float64) (string, int, int, int64, error) {
	return m.text, 80, 120, 40, nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	models := []types.ModelSpec{
		{ModelID: "free-a", IsFree: true, Priority: 1, MaxTokens: 32000,
			TaskAffinities: []types.TaskKind{types.TaskGeneral, types.TaskCodeGeneration, types.TaskCodeReview,
				types.TaskDocumentParsing, types.TaskAgenticComplex, types.TaskAgenticSimple,
				types.TaskVisionLanguage, types.TaskDeepReasoning}},
	}
	reg, err := registry.New(models)
	require.NoError(t, err)
	return reg
}

const decentArtifact = "```go\n// Len counts buffered items\nfunc Len(buf []int) int {\n\tif buf == nil {\n\t\treturn 0\n\t}\n\treturn len(buf)\n}\n```\nHandles the nil edge case via an injected interface seam for tests."

func TestRun_EndToEndAcceptsAndPersists(t *testing.T) {
	store, err := continuity.New(t.TempDir())
	require.NoError(t, err)

	p := New(testRegistry(t), &mockClient{text: decentArtifact}, store)

	history := []types.Message{
		{Role: types.RoleSystem, Content: "Be precise.", Preserve: true},
		{Role: types.RoleUser, Content: "We need a function Len that counts buffered items."},
	}
	policy := types.Policy{PreferFree: true, MaxInputTokens: 1000}

	result, err := p.Run(context.Background(), "implement a function Len", history, policy, 2000, 50, 2, "demo", true)
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.FinalValidation.Score, 50)

	state, err := store.Resume()
	require.NoError(t, err)
	require.Empty(t, state.PendingTasks) // task reached a terminal status
}

func TestRun_DeterministicTaskID(t *testing.T) {
	history := []types.Message{{Role: types.RoleUser, Content: "hello"}}
	id1 := deriveTaskID("do a thing", history)
	id2 := deriveTaskID("do a thing", history)
	require.Equal(t, id1, id2)
}
