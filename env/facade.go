// Package env defines the Environment Facade — a
// polymorphic handle over a rules engine exposing reset/step/validActions/
// terminal/status/board — plus one bounded reference implementation. The
// real chess rules engine (legal move generation, check/checkmate
// detection, FEN encoding) is explicitly out of scope: it is
// an external collaborator specified only by the RulesEngine interface
// below. ReferenceEngine is a small, clearly-bounded stand-in used to
// drive the worker pool, evaluator, and tests end to end.
package env

import (
	"fmt"

	"chesstrain/experience"
	"chesstrain/trainerr"
)

// Color identifies the side to move.
type Color int

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// GameStatus is the GameOutcome sum type reported by status().
type GameStatus int

const (
	Ongoing GameStatus = iota
	WhiteWins
	BlackWins
	Draw
)

// ChessMetrics is returned by chess_metrics().
type ChessMetrics struct {
	GameLength    int
	CaptureCount  int
	CheckCount    int
	LegalMoveRate float64
}

// StepInfo is the "info" element of step()'s (next_state, reward, done,
// info) tuple.
type StepInfo struct {
	Captured    bool
	Termination experience.TerminationReason
}

// RewardConfig governs reward shaping applied inside the Environment at
// construction.
type RewardConfig struct {
	WinReward     float64
	LossReward    float64
	DrawReward    float64
	CaptureReward float64
	StepReward    float64 // shaping applied to ordinary, non-terminal, non-capture moves
}

// DefaultRewardConfig applies no step penalty, matching evaluation's
// default; training callers that want a per-ply cost set StepReward
// directly.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		WinReward:     1.0,
		LossReward:    -1.0,
		DrawReward:    0.0,
		CaptureReward: 0.05,
		StepReward:    0.0,
	}
}

// RulesEngine is the external, out-of-scope collaborator:
// move generation, legality, terminal detection, and FEN encoding. Facade
// wraps one RulesEngine plus a RewardConfig to produce the
// Environment Facade surface.
type RulesEngine interface {
	Reset()
	LegalActions() []int
	MakeMove(action int) (captured bool, err error)
	IsTerminal() bool
	Status() GameStatus
	TerminationReason() experience.TerminationReason
	FEN() string
	ActiveColor() Color
	Encode() []float64
	Metrics() ChessMetrics
	Clone() RulesEngine
}

// Facade is the Environment Facade consumed by the worker pool, evaluator,
// and orchestrator.
type Facade interface {
	Reset() []float64
	Step(action int) (nextState []float64, reward float64, done bool, info StepInfo, err error)
	ValidActions(state []float64) []int
	IsTerminal(state []float64) bool
	Status() GameStatus
	BoardFEN() string
	ActiveColor() Color
	ChessMetrics() ChessMetrics
}

// Environment wraps a RulesEngine with reward shaping to satisfy Facade.
type Environment struct {
	engine RulesEngine
	reward RewardConfig
}

// NewEnvironment constructs an Environment over the given rules engine.
func NewEnvironment(engine RulesEngine, reward RewardConfig) *Environment {
	return &Environment{engine: engine, reward: reward}
}

func (e *Environment) Reset() []float64 {
	e.engine.Reset()
	return e.engine.Encode()
}

// Step executes action for the side currently to move and returns the
// shaped reward from that mover's perspective.
func (e *Environment) Step(action int) ([]float64, float64, bool, StepInfo, error) {
	mover := e.engine.ActiveColor()

	captured, err := e.engine.MakeMove(action)
	if err != nil {
		return nil, 0, false, StepInfo{}, fmt.Errorf("env: step: %w", fmt.Errorf("%w: %v", trainerr.ErrEnvironment, err))
	}

	nextState := e.engine.Encode()
	done := e.engine.IsTerminal()
	info := StepInfo{Captured: captured, Termination: e.engine.TerminationReason()}
	reward := shapeReward(e.reward, mover, captured, done, e.engine.Status())

	return nextState, reward, done, info, nil
}

// shapeReward applies a RewardConfig to one move's outcome, from the
// perspective of the color that made it. Shared by Environment.Step and
// EngineSimulator.Simulate so lookahead search scores moves the same way
// live play does.
func shapeReward(cfg RewardConfig, mover Color, captured, done bool, status GameStatus) float64 {
	reward := cfg.StepReward
	if captured {
		reward = cfg.CaptureReward
	}
	if !done {
		return reward
	}
	switch status {
	case WhiteWins:
		if mover == White {
			return cfg.WinReward
		}
		return cfg.LossReward
	case BlackWins:
		if mover == Black {
			return cfg.WinReward
		}
		return cfg.LossReward
	case Draw:
		return cfg.DrawReward
	}
	return reward
}

// ValidActions returns the engine's current legal actions. The reference
// engine is stateful, so state is accepted for interface compatibility but
// not consulted directly; callers always call ValidActions immediately
// after Reset/Step, which keeps the engine's internal board in sync with
// the state they observed.
func (e *Environment) ValidActions(state []float64) []int {
	return e.engine.LegalActions()
}

// Simulator returns an EngineSimulator bound to the live engine, so
// lookahead opponents playing over this environment search from the real
// current position rather than from a stale snapshot.
func (e *Environment) Simulator() EngineSimulator {
	return EngineSimulator{Engine: e.engine, Reward: e.reward}
}

func (e *Environment) IsTerminal(state []float64) bool { return e.engine.IsTerminal() }
func (e *Environment) Status() GameStatus              { return e.engine.Status() }
func (e *Environment) BoardFEN() string                { return e.engine.FEN() }
func (e *Environment) ActiveColor() Color              { return e.engine.ActiveColor() }
func (e *Environment) ChessMetrics() ChessMetrics      { return e.engine.Metrics() }
