package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chesstrain/agent"
	"chesstrain/rng"
)

func newTestAgent(seed int64) *agent.DQN {
	reg := rng.NewRegistry(seed)
	return agent.NewDQN(agent.DQNOptions{StateSize: 4, ActionSpace: 3, HiddenSize: 4}, reg)
}

func TestCreateWritesPayloadAndMetadata(t *testing.T) {
	m, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	live := newTestAgent(1)
	info, err := m.Create(live, nil, 1, Metadata{Cycle: 1, Performance: 0.5}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Version)
	assert.Greater(t, info.Size, int64(0))
	assert.Equal(t, Unvalidated, info.ValidationStatus)
}

func TestCreateWithValidationDetectsMatchingState(t *testing.T) {
	m, err := New(t.TempDir(), func() [][]float64 { return [][]float64{{0.1, 0.2, 0.3, 0.4}} })
	require.NoError(t, err)

	live := newTestAgent(2)
	scratch := newTestAgent(999) // different seed: Load must overwrite it

	info, err := m.Create(live, scratch, 1, Metadata{Cycle: 1, Performance: 0.5}, true)
	require.NoError(t, err)
	assert.Equal(t, Valid, info.ValidationStatus)
}

func TestGetBestReturnsHighestPerformanceAmongIsBest(t *testing.T) {
	m, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = m.Create(newTestAgent(1), nil, 1, Metadata{Performance: 0.3, IsBest: true}, false)
	require.NoError(t, err)
	_, err = m.Create(newTestAgent(2), nil, 2, Metadata{Performance: 0.6}, false)
	require.NoError(t, err)
	_, err = m.Create(newTestAgent(3), nil, 3, Metadata{Performance: 0.8, IsBest: true}, false)
	require.NoError(t, err)

	best, ok := m.GetBest()
	require.True(t, ok)
	assert.Equal(t, 3, best.Version)
}

func TestListReturnsVersionsAscending(t *testing.T) {
	m, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	for v := 3; v >= 1; v-- {
		_, err := m.Create(newTestAgent(int64(v)), nil, v, Metadata{Performance: 0.1 * float64(v)}, false)
		require.NoError(t, err)
	}
	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{list[0].Version, list[1].Version, list[2].Version})
}

func TestCleanupByRetentionIsSetUnion(t *testing.T) {
	m, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	for v := 1; v <= 10; v++ {
		isBest := v == 4
		_, err := m.Create(newTestAgent(int64(v)), nil, v, Metadata{Performance: 0.1 * float64(v), IsBest: isBest}, false)
		require.NoError(t, err)
	}

	err = m.CleanupByRetention(RetentionPolicy{KeepBest: true, KeepLastN: 2, KeepEveryK: 5})
	require.NoError(t, err)

	var versions []int
	for _, info := range m.List() {
		versions = append(versions, info.Version)
	}
	// best=4, last two={9,10}, every 5th={5,10} -> union {4,5,9,10}
	assert.ElementsMatch(t, []int{4, 5, 9, 10}, versions)
}

func TestLoadRestoresAgentState(t *testing.T) {
	m, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	live := newTestAgent(5)
	info, err := m.Create(live, nil, 1, Metadata{Performance: 0.5}, false)
	require.NoError(t, err)

	target := newTestAgent(123)
	require.NoError(t, m.Load(info, target))
}
