package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chesstrain/agent"
	"chesstrain/env"
	"chesstrain/experience"
	"chesstrain/rng"
)

func newEnvFactory() EnvFactory {
	return func() env.Facade {
		return env.NewEnvironment(env.NewReferenceEngine(), env.DefaultRewardConfig())
	}
}

func TestRunZeroGamesReturnsSafeZeroResult(t *testing.T) {
	e := New(Config{MaxSteps: 50, AdjudicationMargin: 3})
	reg := rng.NewRegistry(1)
	main := agent.NewHeuristic(reg)
	opponent := agent.NewHeuristic(rng.NewRegistry(2))

	result := e.Run(main, func(env.Facade) agent.Facade { return opponent }, newEnvFactory(), 0)
	assert.Equal(t, 0, result.GamesPlayed)
	assert.Nil(t, result.Significance.ConfidenceInterval)
}

func TestRunIdenticalAgentsWinRateCIContainsHalf(t *testing.T) {
	e := New(Config{MaxSteps: 40, AdjudicationMargin: 3})

	result := e.Run(
		agent.NewHeuristic(rng.NewRegistry(10)),
		func(env.Facade) agent.Facade { return agent.NewHeuristic(rng.NewRegistry(10)) },
		newEnvFactory(),
		20,
	)

	require.NotNil(t, result.Significance.ConfidenceInterval)
	ci := result.Significance.ConfidenceInterval
	assert.True(t, ci.Low <= 0.5+1e-9, "CI lower bound should not exceed 0.5 for mirror-matched agents")
	assert.True(t, ci.High >= 0.5-1e-9, "CI upper bound should not fall below 0.5 for mirror-matched agents")
}

func TestRunAlternatesColorByGameIndex(t *testing.T) {
	e := New(Config{MaxSteps: 2, AdjudicationMargin: 3})
	var sawWhite, sawBlack bool

	main := &probeAgent{onSelect: func(a int) {
		if a == 0 {
			sawWhite = true
		} else {
			sawBlack = true
		}
	}}
	_ = e.Run(main, func(env.Facade) agent.Facade { return agent.NewHeuristic(rng.NewRegistry(1)) }, newEnvFactory(), 2)
	assert.True(t, sawWhite, "main agent should have moved as White in the even-indexed game")
	assert.True(t, sawBlack, "main agent should have moved as Black in the odd-indexed game")
}

func TestAdjudicateMapsActiveColorEdgeToMainOutcome(t *testing.T) {
	e := New(Config{MaxSteps: 10, AdjudicationMargin: 3})

	ahead := make([]float64, 64)
	ahead[0] = 5 // the side to move is ahead

	// Main plays White: a White-to-move edge is main's win, a
	// Black-to-move edge is main's loss.
	assert.Equal(t, mainWins, e.adjudicate(ahead, env.White, true))
	assert.Equal(t, mainLoses, e.adjudicate(ahead, env.Black, true))

	// Main plays Black: the mapping inverts with the color assignment.
	assert.Equal(t, mainLoses, e.adjudicate(ahead, env.White, false))
	assert.Equal(t, mainWins, e.adjudicate(ahead, env.Black, false))

	assert.Equal(t, mainDraws, e.adjudicate(make([]float64, 64), env.White, true))
}

// probeAgent is a minimal agent.Facade used only to observe which color
// index (0 for White, 1 for Black) it is asked to move as. In the opening
// plies of a reference-engine game every White move starts on the lower
// half of the board (from-square >= 32) and every Black move on the upper
// half, so the first valid action's from-square identifies the mover.
type probeAgent struct {
	onSelect func(colorIndex int)
}

func (p *probeAgent) SelectAction(state []float64, validActions []int) (int, error) {
	colorIndex := 1
	if validActions[0]/64 >= 32 {
		colorIndex = 0
	}
	p.onSelect(colorIndex)
	return validActions[0], nil
}
func (p *probeAgent) TrainBatch(batch []experience.Transition) (agent.UpdateResult, error) {
	return agent.UpdateResult{}, nil
}
func (p *probeAgent) GetMetrics() agent.Metrics                               { return agent.Metrics{} }
func (p *probeAgent) SetExplorationRate(rate float64)                         {}
func (p *probeAgent) SetNextActionProvider(provider agent.NextActionProvider) {}
func (p *probeAgent) Save(path string) error                                  { return nil }
func (p *probeAgent) Load(path string) error                                  { return nil }
func (p *probeAgent) Reset()                                                  {}
