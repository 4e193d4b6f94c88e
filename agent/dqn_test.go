package agent

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"chesstrain/experience"
	"chesstrain/rng"
	"chesstrain/trainerr"
)

func newTestDQN() *DQN {
	reg := rng.NewRegistry(42)
	return NewDQN(DQNOptions{
		StateSize:    4,
		ActionSpace:  3,
		HiddenSize:   8,
		LearningRate: 0.1,
		Discount:     0.9,
		Exploration:  0.0,
	}, reg)
}

func TestSelectActionReturnsAValidAction(t *testing.T) {
	d := newTestDQN()
	valid := []int{0, 2}
	for i := 0; i < 20; i++ {
		a, err := d.SelectAction([]float64{0.1, 0.2, 0.3, 0.4}, valid)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a != 0 && a != 2 {
			t.Fatalf("SelectAction returned %d, not a member of %v", a, valid)
		}
	}
}

func TestSelectActionErrorsOnNoValidActions(t *testing.T) {
	d := newTestDQN()
	if _, err := d.SelectAction([]float64{0, 0, 0, 0}, nil); err == nil {
		t.Fatal("expected an error for an empty valid-action set")
	}
}

func TestTrainBatchReportsFiniteMetrics(t *testing.T) {
	d := newTestDQN()
	batch := []experience.Transition{
		{State: []float64{0.1, 0.2, 0.3, 0.4}, Action: 0, Reward: 1, NextState: []float64{0.2, 0.1, 0.4, 0.3}, Done: true},
		{State: []float64{0.4, 0.3, 0.2, 0.1}, Action: 2, Reward: -1, NextState: []float64{0.1, 0.1, 0.1, 0.1}, Done: false},
	}

	result, err := d.TrainBatch(batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.IsNaN(result.Loss) || math.IsInf(result.Loss, 0) {
		t.Fatalf("loss is not finite: %v", result.Loss)
	}
	if result.QValueMean == nil || result.TargetValueMean == nil {
		t.Fatal("expected QValueMean and TargetValueMean to be reported")
	}
}

func TestTrainBatchMasksNextStateToProvider(t *testing.T) {
	d := newTestDQN()
	d.SetNextActionProvider(func(state []float64) []int { return []int{1} })

	batch := []experience.Transition{
		{State: []float64{0.1, 0.2, 0.3, 0.4}, Action: 0, Reward: 0.5, NextState: []float64{0.2, 0.2, 0.2, 0.2}, Done: false},
	}
	if _, err := d.TrainBatch(batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTrainBatchRejectsEmptyBatch(t *testing.T) {
	d := newTestDQN()
	if _, err := d.TrainBatch(nil); err == nil {
		t.Fatal("expected an error for an empty batch")
	}
}

func TestSaveLoadRoundTripsWeights(t *testing.T) {
	d := newTestDQN()
	path := filepath.Join(t.TempDir(), "agent.gob")

	if err := d.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	reg := rng.NewRegistry(7) // different seed: Load must overwrite it
	d2 := NewDQN(DQNOptions{StateSize: 4, ActionSpace: 3, HiddenSize: 8}, reg)
	if err := d2.Load(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	state := []float64{0.1, 0.2, 0.3, 0.4}
	q1, err := d.net.predict(state)
	if err != nil {
		t.Fatalf("predict on original failed: %v", err)
	}
	q2, err := d2.net.predict(state)
	if err != nil {
		t.Fatalf("predict on loaded failed: %v", err)
	}
	for i := range q1 {
		if math.Abs(q1[i]-q2[i]) > 1e-12 {
			t.Fatalf("loaded weights diverge at output %d: %v vs %v", i, q1[i], q2[i])
		}
	}

	if d2.explorationRate != d.explorationRate {
		t.Fatalf("exploration rate not restored: got %v want %v", d2.explorationRate, d.explorationRate)
	}
}

func TestLoadNonexistentFileErrors(t *testing.T) {
	d := newTestDQN()
	err := d.Load(filepath.Join(os.TempDir(), "does-not-exist-chesstrain.gob"))
	if err == nil {
		t.Fatal("expected an error loading a nonexistent file")
	}
	if !errors.Is(err, trainerr.ErrAgent) {
		t.Fatalf("expected err to wrap trainerr.ErrAgent, got %v", err)
	}
}
