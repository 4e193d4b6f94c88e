package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chesstrain/rng"
)

func TestHeuristicPrefersHighestValueCapture(t *testing.T) {
	h := NewHeuristic(rng.NewRegistry(1))

	state := make([]float64, 64)
	state[10] = -0.33 // knight/bishop-value capture
	state[20] = -1.0  // queen-value capture
	state[30] = -0.11 // pawn-value capture

	actions := []int{0*64 + 10, 5*64 + 20, 7*64 + 30}
	best, err := h.SelectAction(state, actions)
	require.NoError(t, err)
	assert.Equal(t, 5*64+20, best)
}

func TestHeuristicReturnsValidActionWhenAllQuiet(t *testing.T) {
	h := NewHeuristic(rng.NewRegistry(2))
	state := make([]float64, 64)
	actions := []int{4, 9, 40}

	for i := 0; i < 10; i++ {
		a, err := h.SelectAction(state, actions)
		require.NoError(t, err)
		assert.Contains(t, actions, a)
	}
}

func TestHeuristicDeterministicAcrossEqualSeeds(t *testing.T) {
	state := make([]float64, 64)
	actions := []int{1, 2, 3}

	h1 := NewHeuristic(rng.NewRegistry(99))
	h2 := NewHeuristic(rng.NewRegistry(99))

	for i := 0; i < 5; i++ {
		a1, _ := h1.SelectAction(state, actions)
		a2, _ := h2.SelectAction(state, actions)
		assert.Equal(t, a1, a2)
	}
}

func TestHeuristicTrainBatchIsNoop(t *testing.T) {
	h := NewHeuristic(rng.NewRegistry(3))
	result, err := h.TrainBatch(nil)
	require.NoError(t, err)
	assert.Zero(t, result)
	assert.Zero(t, h.GetMetrics())
}
