// Package orchestrator implements the Training Orchestrator: the
// top-level cycle loop that interleaves self-play, experience
// integration, batch training, evaluation, checkpointing, adaptive
// scheduling, rollback, opponent updates, and convergence-based early
// stop. It composes every other package in this module as a long-lived
// object with an explicit state machine instead of a straight-line
// script.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"chesstrain/agent"
	"chesstrain/checkpoint"
	"chesstrain/config"
	"chesstrain/convergence"
	"chesstrain/evaluator"
	"chesstrain/experience"
	"chesstrain/rng"
	"chesstrain/selfplay"
	"chesstrain/trainerr"
	"chesstrain/validator"
)

// Deps are the collaborators the Orchestrator composes. Every field
// except Learner, NewEnv, and Config is optional; the zero value degrades
// gracefully (see New).
type Deps struct {
	Config config.Config

	// Registry is the process-wide Rng Registry. If nil, New
	// constructs one from Config.Seed.
	Registry *rng.Registry

	// Logger receives per-cycle and per-failure events. If nil, a
	// disabled logger is used.
	Logger *log.Logger

	// Learner is the Agent Facade under training.
	Learner agent.Facade

	// Opponent is a separately-owned Agent Facade of the same concrete
	// type as Learner, updated from Learner per the opponent-update
	// strategy. If nil, New uses the heuristic opponent in its place;
	// since Heuristic.Load is a no-op, the opponent-update strategies then
	// leave it unchanged.
	Opponent agent.Facade

	// NewScratch returns a fresh, otherwise-uninitialized instance of the
	// same concrete Facade type as Learner, used for checkpoint reload
	// validation. May be nil, which disables validation
	// regardless of Config.Checkpoint.Validate.
	NewScratch func() agent.Facade

	// NewEnv returns a fresh Environment Facade for one game (self-play or
	// evaluation).
	NewEnv selfplay.EnvFactory

	// HeuristicOpponent is the fixed baseline used during the opponent
	// warmup window and as a fallback evaluation
	// opponent when PickEvalOpponent is nil.
	HeuristicOpponent agent.Facade

	// PickEvalOpponent selects the Evaluator's per-game opponent. If nil,
	// the opponent kind configured in Config.Evaluation is used
	// (heuristic, depth-limited minimax, or a mixed pool).
	PickEvalOpponent evaluator.PickOpponent

	// ProbeStates supplies fixed probe states for checkpoint reload
	// validation. May be nil.
	ProbeStates checkpoint.ProbeFunc

	// OnReport, if set, is called once per completed cycle with that
	// cycle's Report.
	OnReport func(Report)
}

// Orchestrator is the top-level training loop.
type Orchestrator struct {
	cfg    config.Config
	reg    *rng.Registry
	logger *log.Logger

	learner      *agent.Guard
	opponent     *agent.Guard
	heuristicOpp agent.Facade

	newEnv      selfplay.EnvFactory
	newScratch  func() agent.Facade
	pickEvalOpp evaluator.PickOpponent
	onReport    func(Report)

	store       *experience.Store
	pool        *selfplay.Pool
	checkpoints *checkpoint.Manager
	evalr       *evaluator.Evaluator
	valid       *validator.Validator
	schedTrend  *convergence.Detector
	convDetect  *convergence.Detector

	state    stateBox
	stopFlag atomic.Bool

	cycle              int
	perfHistory        []float64
	bestPerformance    float64
	haveBest           bool
	bestVersion        int
	currentGames       int
	currentRatio       float64
	currentExploration float64
}

// New constructs an Orchestrator. Initialization failure is fatal: a bad Config, or a Checkpoint Manager that cannot create its base
// directory, returns a non-nil error and no Orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Learner == nil {
		return nil, fmt.Errorf("%w: orchestrator: Deps.Learner is required", trainerr.ErrConfig)
	}
	if deps.NewEnv == nil {
		return nil, fmt.Errorf("%w: orchestrator: Deps.NewEnv is required", trainerr.ErrConfig)
	}

	reg := deps.Registry
	if reg == nil {
		reg = rng.NewRegistry(deps.Config.Seed)
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	heuristic := deps.HeuristicOpponent
	if heuristic == nil {
		heuristic = agent.NewHeuristic(reg)
	}
	opp := deps.Opponent
	if opp == nil {
		opp = heuristic
	}

	store := experience.NewStore(experience.Config{
		Capacity:            deps.Config.Experience.Capacity,
		Cleanup:             deps.Config.Experience.Cleanup,
		CleanupRatio:        deps.Config.Experience.CleanupRatio,
		MixedRecentFraction: deps.Config.Experience.MixedRecentFraction,
	}, reg)

	pool := selfplay.New(selfplay.Config{
		Concurrency:        deps.Config.SelfPlay.Concurrency,
		MaxSteps:           deps.Config.SelfPlay.MaxSteps,
		StepLimitPenalty:   deps.Config.SelfPlay.StepLimitPenalty,
		AdjudicationMargin: deps.Config.SelfPlay.AdjudicationMargin,
	}, logger.WithPrefix("selfplay"))

	checkpoints, err := checkpoint.New(deps.Config.Checkpoint.BaseDir, deps.ProbeStates)
	if err != nil {
		return nil, err
	}

	evalr := evaluator.New(evaluator.Config{
		MaxSteps:           deps.Config.SelfPlay.MaxSteps,
		AdjudicationMargin: deps.Config.SelfPlay.AdjudicationMargin,
	})

	o := &Orchestrator{
		cfg:                deps.Config,
		reg:                reg,
		logger:             logger,
		learner:            agent.NewGuard(deps.Learner),
		opponent:           agent.NewGuard(opp),
		heuristicOpp:       heuristic,
		newEnv:             deps.NewEnv,
		newScratch:         deps.NewScratch,
		pickEvalOpp:        deps.PickEvalOpponent,
		onReport:           deps.OnReport,
		store:              store,
		pool:               pool,
		checkpoints:        checkpoints,
		evalr:              evalr,
		valid:              validator.New(deps.Config.Validator),
		schedTrend:         convergence.New(deps.Config.Scheduling.Window),
		convDetect:         convergence.New(deps.Config.Convergence.Window),
		currentGames:       deps.Config.SelfPlay.GamesPerCycle,
		currentRatio:       deps.Config.Training.TrainingRatio,
		currentExploration: deps.Config.Exploration.WarmupRate,
	}
	o.state.store(Initialized)
	return o, nil
}

// Status returns the current top-level state.
func (o *Orchestrator) Status() State { return o.state.load() }

// Pause suspends the loop between cycles. A no-op unless currently Running.
func (o *Orchestrator) Pause() bool { return o.state.cas(Running, Paused) }

// Resume continues a paused loop. A no-op unless currently Paused.
func (o *Orchestrator) Resume() bool { return o.state.cas(Paused, Running) }

// Stop requests a graceful stop; the run ends after the current cycle
// completes safely, and the worker pool starts no further games past the
// next game boundary. A no-op unless currently Running or Paused.
func (o *Orchestrator) Stop() bool {
	if o.state.cas(Running, Stopping) || o.state.cas(Paused, Stopping) {
		o.stopFlag.Store(true)
		return true
	}
	return false
}

// Run executes the cycle loop for up to
// Config.Cycles cycles, or until an external Stop, or until the
// Convergence Detector reports Converged with early-stop enabled. It
// transitions Initialized -> Running on entry and always ends in Stopped,
// saving a final checkpoint on that transition.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.state.cas(Initialized, Running) {
		return fmt.Errorf("%w: orchestrator: Run called from state %s, expected Initialized", trainerr.ErrConfig, o.state.load())
	}

	for o.cycle = 1; o.cycle <= o.cfg.Cycles; o.cycle++ {
		if !o.awaitRunnable(ctx) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		report, err := o.runCycle(ctx)
		if err != nil {
			o.logger.Error("cycle failed", "cycle", o.cycle, "err", err)
			continue
		}
		if o.onReport != nil {
			o.onReport(report)
		}
		if report.Convergence.Status == convergence.Converged && o.cfg.Convergence.Enabled {
			o.logger.Info("convergence detected, stopping early", "cycle", o.cycle)
			break
		}
		if o.state.load() == Stopping {
			break
		}
	}

	o.state.store(Stopping)
	if err := o.saveFinalCheckpoint(); err != nil {
		o.logger.Error("final checkpoint failed", "err", err)
	}
	o.state.store(Stopped)
	return nil
}

// awaitRunnable blocks while Paused, returning false if the context is
// cancelled or a stop is requested while waiting. Workers are never
// interrupted mid-game: this only ever blocks between
// cycles.
func (o *Orchestrator) awaitRunnable(ctx context.Context) bool {
	for o.state.load() == Paused {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
	return o.state.load() == Running
}

// runCycle executes one full cycle.
func (o *Orchestrator) runCycle(ctx context.Context) (Report, error) {
	start := time.Now()

	o.applyExplorationSchedule()

	opponentForCycle := o.opponentFacadeForCycle()

	results := o.pool.Play(ctx, o.currentGames, o.learner, opponentForCycle, o.newEnv, &o.stopFlag)

	selfPlayStats := o.integrateExperience(results)

	batchCount, avgLoss, avgGrad, avgEntropy, issues := o.trainBatches()

	o.adjustPolicyFromIssues(issues)

	evalResult := o.evalr.Run(o.learner, o.pickOpponentForEval(), evaluator.EnvFactory(o.newEnv), o.cfg.Evaluation.GamesPerEvaluation)
	perf := performanceScore(evalResult, o.cfg.SelfPlay.MaxSteps)

	o.perfHistory = append(o.perfHistory, perf)
	o.schedTrend.Observe(perf)
	o.convDetect.Observe(perf)

	isBest := o.trackBestModel(perf)
	o.periodicCheckpoint()

	o.applyAdaptiveScheduling()

	rolledBack := o.considerRollback()

	if err := o.updateOpponent(evalResult.WinRate); err != nil {
		o.logger.Warn("opponent update failed", "cycle", o.cycle, "err", err)
	}

	convReport := o.convDetect.Evaluate()

	metrics := CycleMetrics{
		Cycle:                o.cycle,
		GamesPlayed:          len(results),
		TransitionsCollected: selfPlayStats.transitions,
		AverageGameLength:    selfPlayStats.avgLength,
		AverageLoss:          avgLoss,
		AverageGradNorm:      avgGrad,
		AverageEntropy:       avgEntropy,
		BatchCount:           batchCount,
		WinRate:              selfPlayStats.winRate,
		DrawRate:             selfPlayStats.drawRate,
		LossRate:             selfPlayStats.lossRate,
		PerformanceScore:     perf,
		Duration:             time.Since(start),
	}

	return Report{
		Metrics: metrics,
		Snapshot: PerformanceSnapshot{
			Cycle:        o.cycle,
			OverallScore: perf,
			WinRate:      evalResult.WinRate,
			DrawRate:     evalResult.DrawRate,
			Loss:         avgLoss,
			Entropy:      avgEntropy,
		},
		ValidatorIssues:  issues,
		Convergence:      convReport,
		IsBestCheckpoint: isBest,
		RolledBack:       rolledBack,
	}, nil
}

// opponentFacadeForCycle implements the opponent-selection rule: during the
// opponent-warmup window, self-play is always against the fixed heuristic;
// afterwards it is against the opponent maintained by the opponent-update
// strategy.
func (o *Orchestrator) opponentFacadeForCycle() agent.Facade {
	if o.cycle <= o.cfg.Opponent.WarmupCycles {
		return o.heuristicOpp
	}
	return o.opponent
}

func (o *Orchestrator) pickOpponentForEval() evaluator.PickOpponent {
	if o.pickEvalOpp != nil {
		return o.pickEvalOpp
	}
	return o.defaultEvalOpponent
}

// applyExplorationSchedule sets a higher
// warmup rate for the first W cycles, then either a fixed rate or a
// linear decay from eps_start to eps_end over eps_cycles cycles.
func (o *Orchestrator) applyExplorationSchedule() {
	cfg := o.cfg.Exploration
	var rate float64
	switch {
	case o.cycle <= cfg.WarmupCycles:
		rate = cfg.WarmupRate
	case cfg.EpsCycles <= 0:
		rate = cfg.EpsStart
	default:
		progressed := o.cycle - cfg.WarmupCycles
		if progressed >= cfg.EpsCycles {
			rate = cfg.EpsEnd
		} else {
			frac := float64(progressed) / float64(cfg.EpsCycles)
			rate = cfg.EpsStart + frac*(cfg.EpsEnd-cfg.EpsStart)
		}
	}
	o.currentExploration = rate
	o.learner.SetExplorationRate(rate)
}

// performanceScore computes the weighted combination of evaluation
// metrics, clipped to [0,1]. normalizedReward has no direct analogue in
// evaluator.Result (which reports rates, not raw reward), so it is derived
// from the win/loss differential shifted into [0,1]: a symmetric,
// deterministic proxy built entirely from the same rates already used by
// the other three terms.
func performanceScore(r evaluator.Result, maxSteps int) float64 {
	if r.GamesPlayed == 0 {
		return 0
	}
	normalizedReward := (r.WinRate - r.LossRate + 1) / 2
	lengthTerm := 1.0
	if maxSteps > 0 {
		lengthTerm = 1 - r.AvgLength/float64(maxSteps)
	}
	score := 0.4*normalizedReward + 0.3*r.WinRate + 0.1*r.DrawRate + 0.2*lengthTerm
	return clamp01(score)
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

// trackBestModel creates a best checkpoint if performance exceeds the
// best so far. Checkpoint I/O is retried once on failure, then the cycle
// continues without rollback.
func (o *Orchestrator) trackBestModel(perf float64) bool {
	if o.haveBest && perf <= o.bestPerformance {
		return false
	}

	var seed = o.reg.MasterSeed()
	meta := checkpoint.Metadata{
		Cycle:             o.cycle,
		Performance:       perf,
		Description:       "best model so far",
		IsBest:            true,
		SeedConfiguration: &seed,
	}

	_, err := o.createCheckpointWithRetry(o.cycle, meta)
	if err != nil {
		o.logger.Error("best checkpoint creation failed twice, continuing without rollback", "cycle", o.cycle, "err", err)
		return false
	}

	o.bestPerformance = perf
	o.haveBest = true
	o.bestVersion = o.cycle
	return true
}

// periodicCheckpoint creates a regular checkpoint every
// checkpoint_interval cycles and enforces retention.
func (o *Orchestrator) periodicCheckpoint() {
	interval := o.cfg.Checkpoint.Interval
	if interval <= 0 || o.cycle%interval != 0 {
		return
	}

	// A best checkpoint created this same cycle already holds this exact
	// agent state; writing it again would only clobber its is_best record.
	if _, ok := o.checkpoints.Get(o.cycle); !ok {
		var seed = o.reg.MasterSeed()
		perf := 0.0
		if len(o.perfHistory) > 0 {
			perf = o.perfHistory[len(o.perfHistory)-1]
		}
		meta := checkpoint.Metadata{
			Cycle:             o.cycle,
			Performance:       perf,
			Description:       "periodic checkpoint",
			IsBest:            false,
			SeedConfiguration: &seed,
		}
		if _, err := o.createCheckpointWithRetry(o.cycle, meta); err != nil {
			o.logger.Error("periodic checkpoint creation failed twice", "cycle", o.cycle, "err", err)
			return
		}
	}

	if err := o.checkpoints.CleanupByRetention(checkpoint.RetentionPolicy{
		KeepBest:   o.cfg.Checkpoint.KeepBest,
		KeepLastN:  o.cfg.Checkpoint.KeepLastN,
		KeepEveryK: o.cfg.Checkpoint.KeepEveryK,
	}); err != nil {
		o.logger.Error("retention cleanup failed", "cycle", o.cycle, "err", err)
	}
}

// createCheckpointWithRetry implements the "retried once" failure
// semantics shared by best-model, periodic, and final checkpoint
// creation.
func (o *Orchestrator) createCheckpointWithRetry(version int, meta checkpoint.Metadata) (checkpoint.Info, error) {
	var scratch agent.Facade
	if o.newScratch != nil {
		scratch = o.newScratch()
	}

	info, err := o.checkpoints.Create(o.learner, scratch, version, meta, o.cfg.Checkpoint.Validate)
	if err == nil {
		return info, nil
	}
	o.logger.Warn("checkpoint creation failed, retrying once", "version", version, "err", err)

	if o.newScratch != nil {
		scratch = o.newScratch()
	}
	return o.checkpoints.Create(o.learner, scratch, version, meta, o.cfg.Checkpoint.Validate)
}

// saveFinalCheckpoint is called on the Stopped transition. The cycle
// counter sits one past the last completed cycle after a natural finish,
// so the version is clamped; if that cycle's state was already
// checkpointed (best or periodic), there is nothing new to persist.
func (o *Orchestrator) saveFinalCheckpoint() error {
	version := o.cycle
	if version > o.cfg.Cycles {
		version = o.cfg.Cycles
	}
	if _, ok := o.checkpoints.Get(version); ok {
		return nil
	}

	var seed = o.reg.MasterSeed()
	perf := 0.0
	if len(o.perfHistory) > 0 {
		perf = o.perfHistory[len(o.perfHistory)-1]
	}
	meta := checkpoint.Metadata{
		Cycle:             version,
		Performance:       perf,
		Description:       "final checkpoint at stop",
		IsBest:            false,
		SeedConfiguration: &seed,
	}
	_, err := o.createCheckpointWithRetry(version, meta)
	return err
}

// applyAdaptiveScheduling adjusts the self-play/training balance: shrink G /
// grow training_ratio when improving, the inverse when declining, each
// clamped within configured bounds.
func (o *Orchestrator) applyAdaptiveScheduling() {
	sched := o.cfg.Scheduling
	trend := o.schedTrend.Evaluate().Trend

	gamesMax := sched.GamesMax
	if gamesMax <= 0 {
		gamesMax = o.cfg.SelfPlay.GamesPerCycle
	}
	ratioMin := sched.TrainingRatioMin
	if ratioMin <= 0 {
		ratioMin = 0.01
	}

	switch {
	case trend > sched.ImpThreshold:
		o.currentGames = maxInt(sched.GamesMin, int(math.Round(float64(o.currentGames)*0.9)))
		o.currentRatio = math.Min(sched.TrainingRatioMax, o.currentRatio*1.1)
	case trend < -sched.ImpThreshold:
		o.currentGames = minInt(gamesMax, int(math.Round(float64(o.currentGames)*1.1)))
		o.currentRatio = math.Max(ratioMin, o.currentRatio*0.9)
	}
	if o.currentGames < 1 {
		o.currentGames = 1
	}
}

// considerRollback rolls the learner back to the best checkpoint on sustained regression.
func (o *Orchestrator) considerRollback() bool {
	rb := o.cfg.Rollback
	if !rb.Enabled || o.cycle <= rb.WarmupCycles || !o.haveBest {
		return false
	}

	mean := meanOfLast(o.perfHistory, rb.Window)
	if o.bestPerformance-mean <= rb.Threshold {
		return false
	}

	info, ok := o.checkpoints.Get(o.bestVersion)
	if !ok {
		return false
	}
	if err := o.checkpoints.Load(info, o.learner); err != nil {
		o.logger.Error("rollback load failed", "cycle", o.cycle, "err", err)
		return false
	}
	o.logger.Info("rolled back to best checkpoint", "cycle", o.cycle, "version", o.bestVersion)
	return true
}

func meanOfLast(scores []float64, w int) float64 {
	if len(scores) == 0 {
		return 0
	}
	if w <= 0 || w > len(scores) {
		w = len(scores)
	}
	tail := scores[len(scores)-w:]
	var sum float64
	for _, v := range tail {
		sum += v
	}
	return sum / float64(len(tail))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// opponentSyncPath is the shared scratch file CopyMain/Adaptive use to
// move the learner's parameters into the opponent Facade via a save/load
// round trip.
func (o *Orchestrator) opponentSyncPath() string {
	return filepath.Join(o.cfg.Checkpoint.BaseDir, "opponent-sync.gob")
}
