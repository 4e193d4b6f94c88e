// Package config provides configuration management for the training
// pipeline: nested component structs plus a Validate() error method. CLI
// flag parsing is out of scope, so this package exposes Default() and
// FromMap(map[string]any) as the programmatic construction path.
package config

import (
	"fmt"

	"chesstrain/experience"
	"chesstrain/trainerr"
)

// ExplorationConfig governs step 1 of the orchestrator cycle.
type ExplorationConfig struct {
	WarmupCycles int // W
	WarmupRate   float64
	EpsStart     float64
	EpsEnd       float64
	EpsCycles    int
}

// OpponentStrategy is the opponent-update rule applied each cycle.
type OpponentStrategy int

const (
	CopyMain OpponentStrategy = iota
	Historical
	Adaptive
	Fixed
)

// OpponentConfig governs step 2 and step 11 of the orchestrator cycle.
type OpponentConfig struct {
	WarmupCycles   int // cycles using the fixed heuristic opponent
	Strategy       OpponentStrategy
	UpdateFreq     int // opp_freq
	HistoricalLag  int
	AdaptThreshold float64
}

// SelfPlayConfig governs the worker pool.
type SelfPlayConfig struct {
	GamesPerCycle      int // G
	Concurrency        int // C
	MaxSteps           int
	StepLimitPenalty   float64
	AdjudicationMargin float64 // material-balance threshold for step-limit adjudication
}

// ExperienceConfig governs the store.
type ExperienceConfig struct {
	Capacity            int
	Cleanup             experience.CleanupStrategy
	CleanupRatio        float64
	SampleStrategy      experience.SampleStrategy
	MixedRecentFraction float64
}

// TrainingConfig governs batch scheduling.
type TrainingConfig struct {
	BatchSize     int
	TrainingRatio float64
	MaxBatches    int
	LearningRate  float64
	Discount      float64
}

// ValidatorConfig governs the Training Validator.
type ValidatorConfig struct {
	Smoothing            float64 // default 0.2 on new value, 0.8 on EMA
	ClipThreshold        float64 // ExplodingGradients
	MinGradientNorm      float64 // VanishingGradients
	MinPolicyEntropy     float64 // PolicyCollapse
	LargeLossChangeBound float64
	QOverestimationBound float64
}

// Recognized EvaluationConfig.OpponentKind values.
const (
	OpponentHeuristic = "heuristic"
	OpponentMinimax   = "minimax"
	OpponentMixed     = "mixed"
)

// EvaluationConfig governs the Evaluator and the
// performance-score weighting.
type EvaluationConfig struct {
	GamesPerEvaluation int // E
	OpponentKind       string
	MinimaxDepth       int
	MixedHeuristicP    float64
	MixedDepth1P       float64
	MixedDepth2P       float64
}

// SchedulingConfig governs adaptive scheduling.
type SchedulingConfig struct {
	Window           int // w
	ImpThreshold     float64
	GamesMin         int
	GamesMax         int // 0 means "never grow past the configured games_per_cycle"
	TrainingRatioMax float64
	TrainingRatioMin float64
}

// RollbackConfig governs rollback-to-best-checkpoint on regression.
type RollbackConfig struct {
	Enabled      bool
	WarmupCycles int
	Window       int // r_w
	Threshold    float64
}

// ConvergenceConfig governs early stop via the Convergence Detector.
type ConvergenceConfig struct {
	Enabled bool
	Window  int
}

// CheckpointConfig governs persistence and retention.
type CheckpointConfig struct {
	BaseDir    string
	Interval   int // checkpoint_interval
	KeepBest   bool
	KeepLastN  int
	KeepEveryK int
	Validate   bool
}

// Config aggregates every recognized configuration key.
type Config struct {
	Seed        int64
	Cycles      int // K
	Exploration ExplorationConfig
	Opponent    OpponentConfig
	SelfPlay    SelfPlayConfig
	Experience  ExperienceConfig
	Training    TrainingConfig
	Validator   ValidatorConfig
	Evaluation  EvaluationConfig
	Scheduling  SchedulingConfig
	Rollback    RollbackConfig
	Convergence ConvergenceConfig
	Checkpoint  CheckpointConfig
}

// Default returns a Config with the spec's stated defaults filled in.
func Default() Config {
	return Config{
		Seed:   1,
		Cycles: 100,
		Exploration: ExplorationConfig{
			WarmupCycles: 5,
			WarmupRate:   0.5,
			EpsStart:     0.3,
			EpsEnd:       0.05,
			EpsCycles:    50,
		},
		Opponent: OpponentConfig{
			WarmupCycles:   3,
			Strategy:       CopyMain,
			UpdateFreq:     2,
			HistoricalLag:  5,
			AdaptThreshold: 0.6,
		},
		SelfPlay: SelfPlayConfig{
			GamesPerCycle:      10,
			Concurrency:        4,
			MaxSteps:           200,
			StepLimitPenalty:   -0.1,
			AdjudicationMargin: 3.0,
		},
		Experience: ExperienceConfig{
			Capacity:            20000,
			Cleanup:             experience.OldestFirst,
			CleanupRatio:        0.1,
			SampleStrategy:      experience.Mixed,
			MixedRecentFraction: 0.5,
		},
		Training: TrainingConfig{
			BatchSize:     32,
			TrainingRatio: 0.5,
			MaxBatches:    50,
			LearningRate:  0.01,
			Discount:      0.95,
		},
		Validator: ValidatorConfig{
			Smoothing:            0.2,
			ClipThreshold:        10.0,
			MinGradientNorm:      1e-6,
			MinPolicyEntropy:     0.05,
			LargeLossChangeBound: 5.0,
			QOverestimationBound: 1.0,
		},
		Evaluation: EvaluationConfig{
			GamesPerEvaluation: 20,
			OpponentKind:       OpponentHeuristic,
			MinimaxDepth:       2,
			MixedHeuristicP:    0.34,
			MixedDepth1P:       0.33,
			MixedDepth2P:       0.33,
		},
		Scheduling: SchedulingConfig{
			Window:           5,
			ImpThreshold:     0.02,
			GamesMin:         2,
			GamesMax:         0,
			TrainingRatioMax: 1.0,
			TrainingRatioMin: 0.1,
		},
		Rollback: RollbackConfig{
			Enabled:      false,
			WarmupCycles: 2,
			Window:       5,
			Threshold:    0.15,
		},
		Convergence: ConvergenceConfig{
			Enabled: true,
			Window:  10,
		},
		Checkpoint: CheckpointConfig{
			BaseDir:    "checkpoints",
			Interval:   10,
			KeepBest:   true,
			KeepLastN:  3,
			KeepEveryK: 10,
			Validate:   false,
		},
	}
}

// Validate checks invariants the orchestrator relies on.
func (c *Config) Validate() error {
	if c.Cycles <= 0 {
		return fmt.Errorf("%w: cycles (K) must be positive, got %d", trainerr.ErrConfig, c.Cycles)
	}
	if c.SelfPlay.GamesPerCycle <= 0 {
		return fmt.Errorf("%w: self_play.games_per_cycle (G) must be positive, got %d", trainerr.ErrConfig, c.SelfPlay.GamesPerCycle)
	}
	if c.SelfPlay.Concurrency <= 0 {
		return fmt.Errorf("%w: self_play.concurrency (C) must be positive, got %d", trainerr.ErrConfig, c.SelfPlay.Concurrency)
	}
	if c.SelfPlay.MaxSteps <= 0 {
		return fmt.Errorf("%w: self_play.max_steps must be positive, got %d", trainerr.ErrConfig, c.SelfPlay.MaxSteps)
	}
	if c.Experience.Capacity <= 0 {
		return fmt.Errorf("%w: experience.capacity must be positive, got %d", trainerr.ErrConfig, c.Experience.Capacity)
	}
	if c.Experience.CleanupRatio <= 0 || c.Experience.CleanupRatio > 1 {
		return fmt.Errorf("%w: experience.cleanup_ratio must be in (0,1], got %f", trainerr.ErrConfig, c.Experience.CleanupRatio)
	}
	if c.Training.BatchSize <= 0 {
		return fmt.Errorf("%w: training.batch_size must be positive, got %d", trainerr.ErrConfig, c.Training.BatchSize)
	}
	if c.Training.TrainingRatio <= 0 {
		return fmt.Errorf("%w: training.training_ratio must be positive, got %f", trainerr.ErrConfig, c.Training.TrainingRatio)
	}
	if c.Training.MaxBatches <= 0 {
		return fmt.Errorf("%w: training.max_batches must be positive, got %d", trainerr.ErrConfig, c.Training.MaxBatches)
	}
	switch c.Evaluation.OpponentKind {
	case "", OpponentHeuristic, OpponentMixed:
	case OpponentMinimax:
		if c.Evaluation.MinimaxDepth < 1 {
			return fmt.Errorf("%w: evaluation.minimax_depth must be at least 1, got %d", trainerr.ErrConfig, c.Evaluation.MinimaxDepth)
		}
	default:
		return fmt.Errorf("%w: unrecognized evaluation.opponent_kind %q", trainerr.ErrConfig, c.Evaluation.OpponentKind)
	}
	if c.Checkpoint.BaseDir == "" {
		return fmt.Errorf("%w: checkpoint.base_dir must not be empty", trainerr.ErrConfig)
	}
	if c.Checkpoint.Interval <= 0 {
		return fmt.Errorf("%w: checkpoint.interval must be positive, got %d", trainerr.ErrConfig, c.Checkpoint.Interval)
	}
	return nil
}
