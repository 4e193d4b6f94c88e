package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chesstrain/agent"
	"chesstrain/config"
	"chesstrain/env"
	"chesstrain/rng"
	"chesstrain/selfplay"
)

func newTestEnvFactory() selfplay.EnvFactory {
	return func() env.Facade {
		return env.NewEnvironment(env.NewReferenceEngine(), env.DefaultRewardConfig())
	}
}

func newTestLearner(seed int64) agent.Facade {
	reg := rng.NewRegistry(seed)
	return agent.NewDQN(agent.DQNOptions{
		StateSize: 64, ActionSpace: 4096, HiddenSize: 8,
		LearningRate: 0.05, Discount: 0.9, Exploration: 0.3,
	}, reg)
}

func testConfig(t *testing.T, cycles int) config.Config {
	cfg := config.Default()
	cfg.Cycles = cycles
	cfg.SelfPlay.GamesPerCycle = 2
	cfg.SelfPlay.Concurrency = 2
	cfg.SelfPlay.MaxSteps = 8
	cfg.Training.BatchSize = 4
	cfg.Training.MaxBatches = 2
	cfg.Experience.Capacity = 200
	cfg.Evaluation.GamesPerEvaluation = 2
	cfg.Checkpoint.BaseDir = filepath.Join(t.TempDir(), "checkpoints")
	cfg.Checkpoint.Interval = 2
	cfg.Convergence.Enabled = false
	return cfg
}

func newTestDeps(t *testing.T, cycles int) Deps {
	return Deps{
		Config:  testConfig(t, cycles),
		Learner: newTestLearner(1),
		NewEnv:  newTestEnvFactory(),
		NewScratch: func() agent.Facade {
			return newTestLearner(1)
		},
	}
}

func TestNewRequiresLearnerAndEnv(t *testing.T) {
	cfg := testConfig(t, 1)

	_, err := New(Deps{Config: cfg, NewEnv: newTestEnvFactory()})
	assert.Error(t, err, "missing Learner should fail")

	_, err = New(Deps{Config: cfg, Learner: newTestLearner(1)})
	assert.Error(t, err, "missing NewEnv should fail")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.Cycles = 0

	_, err := New(Deps{Config: cfg, Learner: newTestLearner(1), NewEnv: newTestEnvFactory()})
	assert.Error(t, err)
}

func TestRunCompletesAllCyclesAndProducesBestCheckpoint(t *testing.T) {
	var reports []Report
	deps := newTestDeps(t, 3)
	deps.OnReport = func(r Report) { reports = append(reports, r) }

	o, err := New(deps)
	require.NoError(t, err)
	require.Equal(t, Initialized, o.Status())

	err = o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Stopped, o.Status())
	assert.Len(t, reports, 3)
	for _, r := range reports {
		assert.Equal(t, 2, r.Metrics.GamesPlayed)
	}

	_, ok := o.checkpoints.GetBest()
	assert.True(t, ok, "a best checkpoint should exist after at least one cycle")
}

func TestPauseResumeAndStopTransitions(t *testing.T) {
	o, err := New(newTestDeps(t, 1))
	require.NoError(t, err)

	// Pause/Resume/Stop are no-ops before the loop reaches Running.
	assert.False(t, o.Pause())
	assert.False(t, o.Resume())

	o.state.store(Running)
	assert.True(t, o.Pause())
	assert.Equal(t, Paused, o.Status())
	assert.True(t, o.Resume())
	assert.Equal(t, Running, o.Status())
	assert.True(t, o.Stop())
	assert.Equal(t, Stopping, o.Status())
}

func TestRunStopsEarlyWhenStopRequestedBetweenCycles(t *testing.T) {
	deps := newTestDeps(t, 50)
	o, err := New(deps)
	require.NoError(t, err)

	cyclesSeen := 0
	deps.OnReport = func(Report) {}
	o.onReport = func(r Report) {
		cyclesSeen++
		if cyclesSeen == 1 {
			o.Stop()
		}
	}

	err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stopped, o.Status())
	assert.LessOrEqual(t, cyclesSeen, 2, "run should stop shortly after Stop is requested, not run all 50 cycles")
}
