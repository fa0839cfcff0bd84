package tokenizer

import (
	"testing"

	"github.com/dataparency-dev/delegatecore/internal/types"
	"github.com/stretchr/testify/require"
)

func TestEstimator_CountIsDeterministic(t *testing.T) {
	est := NewEstimator()
	text := "func main() { fmt.Println(\"hello, world\") }"
	a := est.Count(text)
	b := est.Count(text)
	require.Equal(t, a, b)
	require.Greater(t, a, 0)
}

func TestEstimator_EmptyTextIsZero(t *testing.T) {
	est := NewEstimator()
	require.Zero(t, est.Count(""))
}

func TestEstimator_NeverUndercutsWordCount(t *testing.T) {
	est := NewEstimator()
	text := "a b c d e f g h"
	require.GreaterOrEqual(t, est.Count(text), 8)
}

func TestCostMeter_FreeModelIsZeroCost(t *testing.T) {
	meter := NewCostMeter()
	m := types.ModelSpec{ModelID: "free-a", IsFree: true}
	require.Zero(t, meter.Cost(m, 1000, 1000))
}

func TestCostMeter_PaidModelComputesFromPriceTable(t *testing.T) {
	meter := NewCostMeter()
	m := types.ModelSpec{ModelID: "paid-a", InputPricePerMegatoken: 10, OutputPricePerMegatoken: 30}
	cost := meter.Cost(m, 1_000_000, 500_000)
	require.InDelta(t, 10+15, cost, 1e-9)
}

func TestCostMeter_CacheHitMatchesFreshComputation(t *testing.T) {
	meter := NewCostMeter()
	m := types.ModelSpec{ModelID: "paid-b", InputPricePerMegatoken: 5, OutputPricePerMegatoken: 5}
	first := meter.Cost(m, 200_000, 200_000)
	second := meter.Cost(m, 200_000, 200_000)
	require.Equal(t, first, second)
}
