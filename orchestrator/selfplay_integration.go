package orchestrator

import (
	"chesstrain/env"
	"chesstrain/experience"
	"chesstrain/selfplay"
)

// gameMetrics summarizes one cycle's self-play results from the learning
// agent's perspective.
// The worker pool always assigns the learner to White within a single
// game (selfplay.Pool.playOne), so White-perspective outcomes are the
// learner's outcomes.
type gameMetrics struct {
	transitions int
	avgLength   float64
	winRate     float64
	drawRate    float64
	lossRate    float64
}

// integrateExperience flattens every
// game's transitions, applies the step-limit transform, and adds the
// result to the Experience Store, triggering cleanup if needed.
func (o *Orchestrator) integrateExperience(results []selfplay.GameResult) gameMetrics {
	if len(results) == 0 {
		return gameMetrics{}
	}

	var (
		totalLength         int
		wins, draws, losses int
		flattened           []experience.Transition
	)

	for _, r := range results {
		totalLength += r.Length
		switch r.Outcome {
		case env.WhiteWins:
			wins++
		case env.BlackWins:
			losses++
		default:
			draws++
		}
		for _, t := range r.Transitions {
			flattened = append(flattened, applyStepLimitPenalty(t, o.cfg.SelfPlay.StepLimitPenalty))
		}
	}

	o.store.AddMany(flattened, nil)

	n := float64(len(results))
	return gameMetrics{
		transitions: len(flattened),
		avgLength:   float64(totalLength) / n,
		winRate:     float64(wins) / n,
		drawRate:    float64(draws) / n,
		lossRate:    float64(losses) / n,
	}
}

// applyStepLimitPenalty is a safety-net transform. selfplay.Pool already
// applies the penalty and sets Done=true on a game's final transition when
// it hits the step limit, so this is a no-op for transitions produced by
// this pool; it exists so a transition arriving from any other producer
// with TerminationReason==StepLimit but Done==false still gets corrected
// before entering the store, enforcing that invariant unconditionally
// rather than only for this module's own worker pool.
func applyStepLimitPenalty(t experience.Transition, penalty float64) experience.Transition {
	if t.TerminationReason != experience.TerminationStepLimit || t.Done {
		return t
	}
	t.Done = true
	t.Reward += penalty
	return t
}
