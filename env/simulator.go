package env

// EngineSimulator adapts a RulesEngine into the stateless lookahead
// function agent.Minimax needs (agent.Simulator's signature), running each
// candidate move against a fresh clone so search never perturbs the real
// game. state is accepted for interface compatibility but, like
// Environment.ValidActions, the clone's own board is the source of truth.
type EngineSimulator struct {
	Engine RulesEngine
	Reward RewardConfig
}

// Simulate applies action to a clone of s.Engine and reports the shaped
// reward, whether the clone's game ended, and the resulting side's legal
// actions (nil once done).
func (s EngineSimulator) Simulate(state []float64, action int) ([]float64, float64, bool, []int, error) {
	clone := s.Engine.Clone()
	mover := clone.ActiveColor()

	captured, err := clone.MakeMove(action)
	if err != nil {
		return nil, 0, false, nil, err
	}

	next := clone.Encode()
	done := clone.IsTerminal()
	reward := shapeReward(s.Reward, mover, captured, done, clone.Status())

	var nextActions []int
	if !done {
		nextActions = clone.LegalActions()
	}
	return next, reward, done, nextActions, nil
}
