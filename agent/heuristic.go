package agent

import (
	"chesstrain/experience"
	"chesstrain/rng"
)

// Heuristic is a fixed, non-learning material-count Agent Facade: the
// opponent-warmup and Evaluator baseline opponent. Among validActions, it
// prefers the one capturing the most valuable piece, breaking ties via the
// registry's opponent stream.
//
// Heuristic is coupled to the reference environment's action and state
// encoding (action = from*64+to, state[sq] is a signed per-square material
// value): baseline opponents are specified only by the Agent Facade's
// action-selection surface, not by any requirement to be
// environment-agnostic.
type Heuristic struct {
	tieBreak *rng.Stream
}

// NewHeuristic constructs a Heuristic agent whose tie-breaking draws from
// the registry's "opponent" stream.
func NewHeuristic(reg *rng.Registry) *Heuristic {
	return &Heuristic{tieBreak: reg.Stream(rng.StreamOpponent)}
}

func (h *Heuristic) SelectAction(state []float64, validActions []int) (int, error) {
	return greedyCapture(state, validActions, h.tieBreak), nil
}

// greedyCapture picks the action landing on the most valuable occupied
// destination square (state[dest] most negative, since state is encoded
// from the mover's perspective and an occupied opponent square is
// negative), falling back to a uniform random choice among ties
// (including the all-quiet case where every candidate scores 0).
func greedyCapture(state []float64, validActions []int, tieBreak *rng.Stream) int {
	if len(validActions) == 0 {
		return 0
	}

	best := validActions[0]
	bestScore := captureScore(state, best)
	var ties []int
	ties = append(ties, best)

	for _, a := range validActions[1:] {
		score := captureScore(state, a)
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
		return ties[0]
	}
	return ties[tieBreak.Intn(len(ties))]
}

// captureScore is -state[dest]: positive when the destination holds an
// opponent piece, scaled by its material value.
func captureScore(state []float64, action int) float64 {
	dest := action % 64
	if dest < 0 || dest >= len(state) {
		return 0
	}
	return -state[dest]
}

func (h *Heuristic) TrainBatch(batch []experience.Transition) (UpdateResult, error) {
	// Heuristic never learns: it is only ever used as an opponent or
	// warmup policy, never as the agent under training.
	return UpdateResult{}, nil
}

func (h *Heuristic) GetMetrics() Metrics                               { return Metrics{} }
func (h *Heuristic) SetExplorationRate(rate float64)                   {}
func (h *Heuristic) SetNextActionProvider(provider NextActionProvider) {}
func (h *Heuristic) Save(path string) error                            { return nil }
func (h *Heuristic) Load(path string) error                            { return nil }
func (h *Heuristic) Reset()                                            {}
