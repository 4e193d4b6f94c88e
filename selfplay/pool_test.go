package selfplay

import (
	"context"
	"sync/atomic"
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

func TestPlayProducesRequestedGameCount(t *testing.T) {
	p := New(Config{Concurrency: 3, MaxSteps: 30, StepLimitPenalty: -0.1, AdjudicationMargin: 3}, nil)
	reg := rng.NewRegistry(1)
	main := agent.NewHeuristic(reg)
	opp := agent.NewHeuristic(rng.NewRegistry(2))

	results := p.Play(context.Background(), 6, main, opp, newEnvFactory(), nil)
	assert.Len(t, results, 6)
	for _, r := range results {
		assert.Greater(t, r.Length, 0)
	}
}

func TestPlayStepLimitTransitionsAreMarkedDoneWithPenalty(t *testing.T) {
	// MaxSteps=1 forces every game to hit the step limit immediately.
	p := New(Config{Concurrency: 1, MaxSteps: 1, StepLimitPenalty: -0.5, AdjudicationMargin: 3}, nil)
	reg := rng.NewRegistry(5)
	main := agent.NewHeuristic(reg)
	opp := agent.NewHeuristic(rng.NewRegistry(6))

	results := p.Play(context.Background(), 4, main, opp, newEnvFactory(), nil)
	require.NotEmpty(t, results)

	for _, r := range results {
		assert.Equal(t, experience.TerminationStepLimit, r.TerminationReason)
		if len(r.Transitions) == 0 {
			continue
		}
		last := r.Transitions[len(r.Transitions)-1]
		assert.True(t, last.Done, "last transition of a step-limit game must have Done=true")
		// main's only move is a quiet opening move (StepReward 0), so the
		// reward is exactly the penalty.
		assert.Equal(t, -0.5, last.Reward, "last transition of a step-limit game must carry the step-limit penalty")
		assert.Equal(t, experience.TerminationStepLimit, last.TerminationReason)
	}
}

func TestPlayStopsAtGameBoundaryNotMidGame(t *testing.T) {
	p := New(Config{Concurrency: 1, MaxSteps: 30, StepLimitPenalty: -0.1, AdjudicationMargin: 3}, nil)
	reg := rng.NewRegistry(9)
	main := agent.NewHeuristic(reg)
	opp := agent.NewHeuristic(rng.NewRegistry(10))

	var stop atomic.Bool
	stop.Store(true)

	results := p.Play(context.Background(), 5, main, opp, newEnvFactory(), &stop)
	assert.Empty(t, results, "no games should start once stop is already set")
}

func TestAdjudicateScoresMaterialFromActiveColorPerspective(t *testing.T) {
	p := New(Config{Concurrency: 1, MaxSteps: 10, AdjudicationMargin: 3}, nil)

	ahead := make([]float64, 64)
	ahead[0] = 5 // the side to move is ahead by more than the margin

	assert.Equal(t, env.WhiteWins, p.adjudicate(ahead, env.White))
	assert.Equal(t, env.BlackWins, p.adjudicate(ahead, env.Black))

	behind := make([]float64, 64)
	behind[0] = -5
	assert.Equal(t, env.BlackWins, p.adjudicate(behind, env.White))
	assert.Equal(t, env.WhiteWins, p.adjudicate(behind, env.Black))

	assert.Equal(t, env.Draw, p.adjudicate(make([]float64, 64), env.White))
}

func TestPlayOnlyRecordsMainsOwnTransitions(t *testing.T) {
	p := New(Config{Concurrency: 1, MaxSteps: 20, StepLimitPenalty: -0.1, AdjudicationMargin: 3}, nil)
	reg := rng.NewRegistry(3)
	main := agent.NewHeuristic(reg)
	opp := agent.NewHeuristic(rng.NewRegistry(4))

	results := p.Play(context.Background(), 3, main, opp, newEnvFactory(), nil)
	for _, r := range results {
		// Main moves on even plies only (White always moves first), so it
		// can never contribute more transitions than half the game length
		// rounded up.
		assert.LessOrEqual(t, len(r.Transitions), (r.Length+1)/2)
	}
}
