package orchestrator

import (
	"fmt"

	"chesstrain/config"
)

// updateOpponent runs the configured opponent-update
// strategy that keeps the separately-owned opponent Agent Facade current
// relative to the learning agent.
func (o *Orchestrator) updateOpponent(recentWinRate float64) error {
	switch o.cfg.Opponent.Strategy {
	case config.CopyMain:
		if o.cfg.Opponent.UpdateFreq <= 0 || o.cycle%o.cfg.Opponent.UpdateFreq != 0 {
			return nil
		}
		return o.copyMainIntoOpponent()

	case config.Historical:
		if o.cfg.Opponent.UpdateFreq <= 0 || o.cycle%o.cfg.Opponent.UpdateFreq != 0 {
			return nil
		}
		return o.loadHistoricalIntoOpponent()

	case config.Adaptive:
		if recentWinRate <= o.cfg.Opponent.AdaptThreshold {
			return nil
		}
		return o.copyMainIntoOpponent()

	case config.Fixed:
		return nil

	default:
		return fmt.Errorf("orchestrator: unknown opponent strategy %d", o.cfg.Opponent.Strategy)
	}
}

// copyMainIntoOpponent saves the learner's current parameters and loads
// them into the opponent Facade via a shared scratch file, implementing
// the CopyMain/Adaptive strategies' "copy current learning agent
// parameters into opponent (via save/load)" rule.
func (o *Orchestrator) copyMainIntoOpponent() error {
	path := o.opponentSyncPath()
	if err := o.learner.Save(path); err != nil {
		return fmt.Errorf("opponent sync: save learner: %w", err)
	}
	if err := o.opponent.Load(path); err != nil {
		return fmt.Errorf("opponent sync: load opponent: %w", err)
	}
	return nil
}

// loadHistoricalIntoOpponent implements the Historical strategy: load the
// checkpoint at max(0, cycle-lag) into the opponent, falling back to the
// best checkpoint when that version is missing.
func (o *Orchestrator) loadHistoricalIntoOpponent() error {
	target := o.cycle - o.cfg.Opponent.HistoricalLag
	if target < 0 {
		target = 0
	}

	info, ok := o.checkpoints.Get(target)
	if !ok {
		info, ok = o.checkpoints.GetBest()
		if !ok {
			return nil // nothing to load yet (e.g. very early in the run)
		}
	}
	if err := o.checkpoints.Load(info, o.opponent); err != nil {
		return fmt.Errorf("opponent sync: load historical version %d: %w", info.Version, err)
	}
	return nil
}
