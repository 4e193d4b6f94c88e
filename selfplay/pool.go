// Package selfplay implements the Self-Play Worker Pool:
// it produces G complete games per cycle between a learning Agent Facade
// and an opponent Agent Facade over an Environment Facade, using up to C
// concurrent workers. Concurrency is built on golang.org/x/sync/errgroup
// and golang.org/x/sync/semaphore rather than a hand-rolled worker-channel
// loop.
package selfplay

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/charmbracelet/log"

	"chesstrain/agent"
	"chesstrain/env"
	"chesstrain/experience"
)

// GameResult is the outcome and transcript of one completed self-play game.
type GameResult struct {
	GameID            int
	Length            int
	Outcome           env.GameStatus
	TerminationReason experience.TerminationReason
	Duration          time.Duration
	Transitions       []experience.Transition
	FinalPositionFEN  string
}

// Config governs the pool's concurrency and per-game limits.
type Config struct {
	Concurrency        int // C
	MaxSteps           int
	StepLimitPenalty   float64
	AdjudicationMargin float64
}

// EnvFactory returns a fresh Environment Facade for one game.
type EnvFactory func() env.Facade

// Pool runs self-play games concurrently.
type Pool struct {
	cfg    Config
	logger *log.Logger
}

// New constructs a Pool. logger may be nil, in which case a disabled
// logger is used.
func New(cfg Config, logger *log.Logger) *Pool {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Pool{cfg: cfg, logger: logger}
}

// Play runs `games` games with main as White throughout (the opponent
// strategies rotate which parameters main faces across cycles, not which
// color it plays), up to p.cfg.Concurrency at a time.
// stop, if non-nil, is polled before starting each game; once it reports
// true no further games are started, but in-flight games run to
// completion. A single game's failure is
// logged and excluded from the returned results; it never fails the run.
func (p *Pool) Play(ctx context.Context, games int, main, opponent agent.Facade, newEnv EnvFactory, stop *atomic.Bool) []GameResult {
	sem := semaphore.NewWeighted(int64(max(1, p.cfg.Concurrency)))
	g, gctx := errgroup.WithContext(ctx)

	results := make([]*GameResult, games)

	for i := 0; i < games; i++ {
		if stop != nil && stop.Load() {
			p.logger.Info("self-play stopped before game boundary", "games_started", i, "games_requested", games)
			break
		}

		i := i
		if err := sem.Acquire(gctx, 1); err != nil {
			break // context cancelled
		}
		g.Go(func() error {
			defer sem.Release(1)
			result, err := p.playOne(i, main, opponent, newEnv())
			if err != nil {
				p.logger.Warn("self-play game failed", "game_id", i, "err", err)
				return nil
			}
			results[i] = &result
			return nil
		})
	}

	_ = g.Wait() // workers log game failures and always return nil, so Wait only waits for them

	out := make([]GameResult, 0, games)
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// playOne plays one game to natural termination or the step limit,
// recording a Transition for each of main's own moves (the opponent's
// moves shape the environment but are not themselves training data, since
// only the learning agent trains).
func (p *Pool) playOne(gameID int, main, opponent agent.Facade, environment env.Facade) (GameResult, error) {
	start := time.Now()
	state := environment.Reset()

	var transitions []experience.Transition
	step := 0
	termination := experience.TerminationNone
	var outcome env.GameStatus

	for step < p.cfg.MaxSteps {
		valid := environment.ValidActions(state)
		if len(valid) == 0 {
			outcome = environment.Status()
			break
		}

		mainToMove := environment.ActiveColor() == env.White // main is always White in self-play games
		mover := opponent
		if mainToMove {
			mover = main
		}

		action, err := mover.SelectAction(state, valid)
		if err != nil {
			action = valid[0] // fall back to the first valid action and record the error
			p.logger.Warn("select_action did not return a valid action", "game_id", gameID, "err", err)
		}

		next, reward, done, info, err := environment.Step(action)
		if err != nil {
			return GameResult{}, err
		}

		if mainToMove {
			transitions = append(transitions, experience.Transition{
				State: state, Action: action, Reward: reward, NextState: next,
				Done: done, TerminationReason: info.Termination, MoveNumber: step,
			})
		}

		state = next
		step++

		if done {
			outcome = environment.Status()
			termination = info.Termination
			break
		}
	}

	if termination == experience.TerminationNone && step >= p.cfg.MaxSteps {
		outcome = p.adjudicate(state, environment.ActiveColor())
		termination = experience.TerminationStepLimit
		if len(transitions) > 0 {
			last := transitions[len(transitions)-1]
			last.Done = true
			last.Reward += p.cfg.StepLimitPenalty
			last.TerminationReason = experience.TerminationStepLimit
			transitions[len(transitions)-1] = last
		}
	}

	return GameResult{
		GameID:            gameID,
		Length:            step,
		Outcome:           outcome,
		TerminationReason: termination,
		Duration:          time.Since(start),
		Transitions:       transitions,
		FinalPositionFEN:  environment.BoardFEN(),
	}, nil
}

// adjudicate decides a step-limit game by material balance, identical to
// the Evaluator's own adjudication. The state vector is signed from the
// active color's perspective, so a positive sum means the side to move is
// ahead, not necessarily White.
func (p *Pool) adjudicate(state []float64, active env.Color) env.GameStatus {
	var sum float64
	for _, v := range state {
		sum += v
	}
	var winner env.Color
	switch {
	case sum >= p.cfg.AdjudicationMargin:
		winner = active
	case sum <= -p.cfg.AdjudicationMargin:
		winner = active.Opponent()
	default:
		return env.Draw
	}
	if winner == env.White {
		return env.WhiteWins
	}
	return env.BlackWins
}
