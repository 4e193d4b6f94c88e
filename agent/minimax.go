package agent

import (
	"chesstrain/experience"
	"chesstrain/rng"
)

// Simulator lets Minimax look ahead without touching live game state: it
// applies action to state and reports the reward (from the mover's
// perspective, matching env.Facade.Step), whether the game ended, and the
// resulting side's legal actions. env.EngineSimulator implements this by
// running the move against a cloned rules engine.
type Simulator func(state []float64, action int) (nextState []float64, reward float64, done bool, nextValidActions []int, err error)

// MinimaxOptions configures the search depth of a Minimax agent.
type MinimaxOptions struct {
	Depth int // plies searched; <= 1 collapses to one-ply greedy capture
}

// Minimax is a depth-limited, non-learning Agent Facade searching with a
// material-sum evaluation over a caller-supplied Simulator. Like Heuristic,
// it is specified only by the action-selection interface. When no
// Simulator is supplied (Sim == nil), it degrades to the same one-ply
// greedy capture Heuristic uses.
type Minimax struct {
	opts     MinimaxOptions
	sim      Simulator
	tieBreak *rng.Stream
}

// NewMinimax constructs a Minimax agent. sim may be nil, in which case
// SelectAction behaves exactly like Heuristic.
func NewMinimax(opts MinimaxOptions, sim Simulator, reg *rng.Registry) *Minimax {
	if opts.Depth <= 0 {
		opts.Depth = 1
	}
	return &Minimax{opts: opts, sim: sim, tieBreak: reg.Stream(rng.StreamOpponent)}
}

func (m *Minimax) SelectAction(state []float64, validActions []int) (int, error) {
	if m.sim == nil || m.opts.Depth <= 1 || len(validActions) == 0 {
		return greedyCapture(state, validActions, m.tieBreak), nil
	}

	best := validActions[0]
	bestScore := negamax(m.sim, state, best, m.opts.Depth-1)
	var ties []int
	ties = append(ties, best)

	for _, a := range validActions[1:] {
		score := negamax(m.sim, state, a, m.opts.Depth-1)
		switch {
		case score > bestScore:
			best, bestScore = a, score
			ties = ties[:0]
			ties = append(ties, a)
		case score == bestScore:
			ties = append(ties, a)
		}
	}

	if len(ties) == 1 {
		return ties[0], nil
	}
	return ties[m.tieBreak.Intn(len(ties))], nil
}

// negamax scores taking `action` from `state`: the immediate reward to the
// mover, minus the best continuation available to the opponent (negated,
// per the negamax convention), searched `remaining` further plies deep.
// remaining == 0 stops after the immediate reward.
func negamax(sim Simulator, state []float64, action int, remaining int) float64 {
	next, reward, done, nextActions, err := sim(state, action)
	if err != nil {
		return -1e18 // illegal branch: never chosen
	}
	if done || remaining <= 0 || len(nextActions) == 0 {
		return reward
	}

	best := nextActions[0]
	bestScore := negamax(sim, next, best, remaining-1)
	for _, a := range nextActions[1:] {
		score := negamax(sim, next, a, remaining-1)
		if score > bestScore {
			bestScore = score
		}
	}
	return reward - bestScore
}

func (m *Minimax) TrainBatch(batch []experience.Transition) (UpdateResult, error) {
	return UpdateResult{}, nil
}

func (m *Minimax) GetMetrics() Metrics                               { return Metrics{} }
func (m *Minimax) SetExplorationRate(rate float64)                   {}
func (m *Minimax) SetNextActionProvider(provider NextActionProvider) {}
func (m *Minimax) Save(path string) error                            { return nil }
func (m *Minimax) Load(path string) error                            { return nil }
func (m *Minimax) Reset()                                            {}
