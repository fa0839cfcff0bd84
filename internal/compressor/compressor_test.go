package compressor

import (
	"testing"
	"time"

	"github.com/dataparency-dev/delegatecore/internal/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func sampleHistory() []types.Message {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []types.Message{
		{Role: types.RoleSystem, Content: "You are a careful senior engineer.", Timestamp: base, Preserve: true},
		{Role: types.RoleUser, Content: "We hit an error: panic: nil pointer dereference in worker.go.", Timestamp: base.Add(time.Minute)},
		{Role: types.RoleAssistant, Content: "Decided to add a nil check before dereferencing the worker pointer.\n\n```go\nif worker == nil {\n    return errWorkerMissing\n}\n```", Timestamp: base.Add(2 * time.Minute)},
		{Role: types.RoleUser, Content: "Thanks, that resolves Ticket-4821 for the Atlas rollout.", Timestamp: base.Add(3 * time.Minute)},
	}
}

func TestCompress_EmptyHistory(t *testing.T) {
	out, err := Compress(nil, "fix the bug", 500, "ns1", true)
	require.NoError(t, err)
	require.Equal(t, 1.0, out.CompressionRatio)
	require.Len(t, out.ExpectationVector, Dim)
	for _, v := range out.ExpectationVector {
		require.Zero(t, v)
	}
}

func TestCompress_BudgetExceededForPreservedMessages(t *testing.T) {
	_, err := Compress(sampleHistory(), "fix the bug", 1, "ns1", true)
	require.Error(t, err)

	coreErr, ok := err.(*types.CoreError)
	require.True(t, ok)
	require.Equal(t, types.ErrBudgetExceeded, coreErr.Kind)
	require.NotEmpty(t, coreErr.Hint)
}

func TestCompress_ExpectationVectorIsUnitNorm(t *testing.T) {
	out, err := Compress(sampleHistory(), "investigate the worker crash", 1000, "ns1", true)
	require.NoError(t, err)

	var sumSq float64
	for _, v := range out.ExpectationVector {
		sumSq += v * v
	}
	require.InDelta(t, 1.0, sumSq, 1e-6)
}

func TestCompress_Deterministic(t *testing.T) {
	history := sampleHistory()
	a, err := Compress(history, "investigate the worker crash", 1000, "ns1", true)
	require.NoError(t, err)
	b, err := Compress(history, "investigate the worker crash", 1000, "ns1", true)
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("Compress is not deterministic across repeated runs:\n%s", diff)
	}
}

func TestCompress_PreservesSystemMessagesAndExtractsDecisionsAndCode(t *testing.T) {
	out, err := Compress(sampleHistory(), "investigate the worker crash", 1000, "ns1", true)
	require.NoError(t, err)

	require.Equal(t, []string{"You are a careful senior engineer."}, out.PreservedSystemMessages)
	require.NotEmpty(t, out.KeyDecisions)
	require.NotEmpty(t, out.CodeSnippets)
	require.Equal(t, "go", out.CodeSnippets[0].Language)
}

func TestCompress_TotalTokensShrinkAsBudgetShrinks(t *testing.T) {
	history := sampleHistory()
	loose, err := Compress(history, "investigate the worker crash", 5000, "ns1", true)
	require.NoError(t, err)
	tight, err := Compress(history, "investigate the worker crash", 60, "ns1", true)
	require.NoError(t, err)

	require.LessOrEqual(t, tight.TotalTokens, loose.TotalTokens)
}
