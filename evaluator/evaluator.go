// Package evaluator implements the Evaluator: fixed-opponent
// match play used to estimate agent strength, with color alternation and
// normal/binomial statistics from gonum.org/v1/gonum/stat/distuv.
package evaluator

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"chesstrain/agent"
	"chesstrain/env"
)

// Significance is the StatisticalSignificance record for a comparison or
// evaluation run.
type Significance struct {
	SampleSize         int
	ConfidenceInterval *Interval // nil when SampleSize == 0
	PValue             float64
	IsSignificant      bool
	EffectSize         float64
}

// Interval is a closed confidence interval [Low, High].
type Interval struct {
	Low, High float64
}

// Result is the Evaluator's per-run output.
type Result struct {
	GamesPlayed  int
	Wins         int
	Draws        int
	Losses       int
	WinRate      float64
	DrawRate     float64
	LossRate     float64
	AvgLength    float64
	Significance Significance
}

// PickOpponent returns the opponent Facade for one game, given that
// game's freshly-constructed environment (so lookahead opponents can bind
// a simulator to the live engine). Callers implement
// Heuristic/MinimaxDepth(d)/Mixed selection by closing over the configured
// opponent pool and an rng stream; which concrete opponent exists is out
// of the Evaluator's concern — baseline opponents are specified only via
// the action-selection interface.
type PickOpponent func(environment env.Facade) agent.Facade

// EnvFactory returns a fresh Environment Facade for one game, aligned with
// the training reward config.
type EnvFactory func() env.Facade

// Config governs adjudication and per-game limits, mirroring the worker
// pool's own step-limit handling.
type Config struct {
	MaxSteps           int
	AdjudicationMargin float64
}

// Evaluator plays fixed-opponent games against agent under test.
type Evaluator struct {
	cfg Config
}

// New constructs an Evaluator.
func New(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Run plays `games` games of mainAgent against opponents from pickOpponent,
// alternating color by game index (even index -> agent as White), and
// returns aggregate statistics. games == 0 returns a zero Result with a
// nil ConfidenceInterval.
func (e *Evaluator) Run(mainAgent agent.Facade, pickOpponent PickOpponent, newEnv EnvFactory, games int) Result {
	if games == 0 {
		return Result{Significance: Significance{SampleSize: 0}}
	}

	var wins, draws, losses int
	var totalLength int

	for i := 0; i < games; i++ {
		mainIsWhite := i%2 == 0
		environment := newEnv()
		outcome, length := e.playOne(mainAgent, pickOpponent(environment), environment, mainIsWhite)
		totalLength += length
		switch outcome {
		case mainWins:
			wins++
		case mainLoses:
			losses++
		default:
			draws++
		}
	}

	n := float64(games)
	winRate, drawRate, lossRate := float64(wins)/n, float64(draws)/n, float64(losses)/n

	return Result{
		GamesPlayed:  games,
		Wins:         wins,
		Draws:        draws,
		Losses:       losses,
		WinRate:      winRate,
		DrawRate:     drawRate,
		LossRate:     lossRate,
		AvgLength:    float64(totalLength) / n,
		Significance: significanceOf(games, wins, losses, winRate),
	}
}

type gameOutcome int

const (
	mainWins gameOutcome = iota
	mainLoses
	mainDraws
)

// playOne runs a single game to natural termination or the step limit,
// applying material-balance adjudication identical to the worker pool
// when the step limit is hit.
func (e *Evaluator) playOne(main, opponent agent.Facade, environment env.Facade, mainIsWhite bool) (gameOutcome, int) {
	state := environment.Reset()
	step := 0

	for step < e.cfg.MaxSteps {
		valid := environment.ValidActions(state)
		if len(valid) == 0 {
			break
		}

		mover := main
		if (environment.ActiveColor() == env.White) != mainIsWhite {
			mover = opponent
		}

		action, err := mover.SelectAction(state, valid)
		if err != nil {
			action = valid[0]
		}

		next, _, done, _, err := environment.Step(action)
		if err != nil {
			break
		}
		state = next
		step++
		if done {
			return outcomeFromStatus(environment.Status(), mainIsWhite), step
		}
	}

	return e.adjudicate(state, environment.ActiveColor(), mainIsWhite), step
}

func outcomeFromStatus(status env.GameStatus, mainIsWhite bool) gameOutcome {
	switch status {
	case env.WhiteWins:
		if mainIsWhite {
			return mainWins
		}
		return mainLoses
	case env.BlackWins:
		if mainIsWhite {
			return mainLoses
		}
		return mainWins
	default:
		return mainDraws
	}
}

// adjudicate applies the same material-balance adjudication used for
// step-limit terminations: |material diff| >= margin decides a winner,
// otherwise a draw. state is encoded from the active color's perspective
// (see env.ReferenceEngine.Encode), so a positive sum means the side to
// move is ahead; which agent that is depends on the game's color
// assignment.
func (e *Evaluator) adjudicate(state []float64, active env.Color, mainIsWhite bool) gameOutcome {
	var sum float64
	for _, v := range state {
		sum += v
	}
	activeIsMain := (active == env.White) == mainIsWhite
	switch {
	case sum >= e.cfg.AdjudicationMargin:
		if activeIsMain {
			return mainWins
		}
		return mainLoses
	case sum <= -e.cfg.AdjudicationMargin:
		if activeIsMain {
			return mainLoses
		}
		return mainWins
	}
	return mainDraws
}

// significanceOf computes the 95% normal-approximation CI for the win
// rate and a binomial two-tailed p-value over decisive games (wins +
// losses), testing the null hypothesis that wins and losses are equally
// likely.
func significanceOf(games, wins, losses int, winRate float64) Significance {
	n := float64(games)
	se := math.Sqrt(winRate * (1 - winRate) / n)
	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.975) // 95% two-tailed critical value
	ci := &Interval{Low: clamp01(winRate - z*se), High: clamp01(winRate + z*se)}

	decisive := wins + losses
	pValue := 1.0
	if decisive > 0 {
		binom := distuv.Binomial{N: float64(decisive), P: 0.5}
		k := float64(wins)
		// Two-tailed: double the smaller tail, capped at 1.
		tail := binom.CDF(k)
		if k > float64(decisive)/2 {
			tail = 1 - binom.CDF(k-1)
		}
		pValue = math.Min(1, 2*tail)
	}

	effect := math.Abs(winRate - 0.5)

	return Significance{
		SampleSize:         games,
		ConfidenceInterval: ci,
		PValue:             pValue,
		IsSignificant:      pValue < 0.05,
		EffectSize:         effect,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
