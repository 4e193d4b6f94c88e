package orchestrator

import (
	"chesstrain/agent"
	"chesstrain/config"
	"chesstrain/env"
	"chesstrain/rng"
)

// defaultEvalOpponent realizes config.EvaluationConfig.OpponentKind when
// the caller injects no PickEvalOpponent of their own: "heuristic" plays
// the fixed material-count baseline, "minimax" a depth-limited searcher
// bound to the game's live engine, and "mixed" draws one of
// heuristic/depth-1/depth-2 per game from the registry's evaluation
// stream using the configured probabilities.
func (o *Orchestrator) defaultEvalOpponent(environment env.Facade) agent.Facade {
	cfg := o.cfg.Evaluation
	switch cfg.OpponentKind {
	case config.OpponentMinimax:
		return o.minimaxOpponent(environment, cfg.MinimaxDepth)

	case config.OpponentMixed:
		r := o.reg.Stream(rng.StreamEvaluation).Float64()
		switch {
		case r < cfg.MixedHeuristicP:
			return o.heuristicOpp
		case r < cfg.MixedHeuristicP+cfg.MixedDepth1P:
			return o.minimaxOpponent(environment, 1)
		default:
			return o.minimaxOpponent(environment, 2)
		}

	default:
		return o.heuristicOpp
	}
}

func (o *Orchestrator) minimaxOpponent(environment env.Facade, depth int) agent.Facade {
	return agent.NewMinimax(agent.MinimaxOptions{Depth: depth}, simulatorOf(environment), o.reg)
}

// simulatorOf extracts a live-engine simulator from environments that
// offer one (env.Environment does); other Facade implementations yield a
// nil simulator, degrading Minimax to its one-ply greedy fallback.
func simulatorOf(environment env.Facade) agent.Simulator {
	if p, ok := environment.(interface{ Simulator() env.EngineSimulator }); ok {
		return p.Simulator().Simulate
	}
	return nil
}
