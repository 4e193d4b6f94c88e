package experience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chesstrain/rng"
)

func makeTransitions(n int, offset int) []Transition {
	out := make([]Transition, n)
	for i := range out {
		out[i] = Transition{
			State:  []float64{float64(offset + i)},
			Action: offset + i,
			Reward: float64(offset+i) / 100,
		}
	}
	return out
}

func TestStoreSizeNeverExceedsCapacity(t *testing.T) {
	reg := rng.NewRegistry(1)
	s := NewStore(DefaultConfig(50), reg)

	for added := 0; added < 500; added += 17 {
		s.AddMany(makeTransitions(17, added), nil)
		require.LessOrEqual(t, s.Size(), 50)
	}
}

func TestSampleReturnsOnlyPresentItems(t *testing.T) {
	reg := rng.NewRegistry(2)
	s := NewStore(DefaultConfig(100), reg)
	s.AddMany(makeTransitions(80, 0), nil)

	batch := s.SampleBatch(30, Uniform)
	assert.True(t, s.Contains(batch))
}

func TestRecentSamplingReturnsLastKInOrder(t *testing.T) {
	reg := rng.NewRegistry(3)
	s := NewStore(DefaultConfig(100), reg)
	s.AddMany(makeTransitions(40, 0), nil)

	batch := s.SampleBatch(10, Recent)
	require.Len(t, batch, 10)
	for i, tr := range batch {
		assert.Equal(t, 30+i, tr.Action)
	}
}

func TestUniformSampleDeterministicAcrossEqualSeeds(t *testing.T) {
	regA := rng.NewRegistry(99)
	regB := rng.NewRegistry(99)
	sa := NewStore(DefaultConfig(100), regA)
	sb := NewStore(DefaultConfig(100), regB)

	trans := makeTransitions(50, 0)
	sa.AddMany(trans, nil)
	sb.AddMany(trans, nil)

	batchA := sa.SampleBatch(20, Uniform)
	batchB := sb.SampleBatch(20, Uniform)
	assert.Equal(t, batchA, batchB)
}

func TestSampleZeroReturnsEmptyBatch(t *testing.T) {
	reg := rng.NewRegistry(4)
	s := NewStore(DefaultConfig(10), reg)
	s.AddMany(makeTransitions(5, 0), nil)

	batch := s.SampleBatch(0, Uniform)
	assert.NotNil(t, batch)
	assert.Empty(t, batch)
}

func TestEmptyStoreSamplesEmpty(t *testing.T) {
	reg := rng.NewRegistry(5)
	s := NewStore(DefaultConfig(10), reg)

	batch := s.SampleBatch(5, Uniform)
	assert.Empty(t, batch)
}

func TestAddManyAppendsSuffixInInsertionOrder(t *testing.T) {
	reg := rng.NewRegistry(6)
	s := NewStore(DefaultConfig(1000), reg)
	s.AddMany(makeTransitions(5, 0), nil)
	s.AddMany(makeTransitions(5, 100), nil)

	require.Len(t, s.items, 10)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 100+i, s.items[5+i].t.Action)
	}
}

func TestLowestQualityCleanupEvictsLowestScores(t *testing.T) {
	reg := rng.NewRegistry(7)
	cfg := Config{Capacity: 10, Cleanup: LowestQuality, CleanupRatio: 0.5}
	s := NewStore(cfg, reg)

	trans := makeTransitions(10, 0)
	scores := make([]float64, 10)
	for i := range scores {
		scores[i] = float64(i) / 10 // ascending, so lowest = oldest here too
	}
	s.AddMany(trans, scores)
	s.AddMany(makeTransitions(3, 100), []float64{0.9, 0.95, 0.99})

	// 13 items overflow capacity 10, evicting ceil(0.5*10) = 5: the five
	// lowest-scored items (0.0 through 0.4) go, everything else survives.
	require.Equal(t, 8, s.Size())
	for _, it := range s.items {
		assert.GreaterOrEqual(t, it.score, 0.5)
	}
}

func TestMixedSamplingNoDuplicates(t *testing.T) {
	reg := rng.NewRegistry(8)
	s := NewStore(DefaultConfig(100), reg)
	s.AddMany(makeTransitions(40, 0), nil)

	batch := s.SampleBatch(20, Mixed)
	seen := make(map[int]bool)
	for _, tr := range batch {
		assert.False(t, seen[tr.Action], "duplicate action %d in one batch", tr.Action)
		seen[tr.Action] = true
	}
}
