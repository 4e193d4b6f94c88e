package config

import (
	"fmt"

	"chesstrain/trainerr"
)

// recognizedKeys are the configuration parameters recognized at start.
// FromMap accepts only these; anything else is a ConfigError.
var recognizedKeys = map[string]bool{
	"name":               true,
	"controller_type":    true,
	"iterations":         true,
	"deterministic_flag": true,
	"learning_rate":      true,
	"exploration_rate":   true,
	"batch_size":         true,
	"games_per_cycle":    true,
	"seed":               true,
}

// FromMap builds a Config starting from Default() and overlaying the given
// keys. It is the programmatic substitute for a CLI/config-file frontend,
// which is out of scope here.
func FromMap(m map[string]any) (Config, error) {
	cfg := Default()

	for key, value := range m {
		if !recognizedKeys[key] {
			return Config{}, fmt.Errorf("%w: unrecognized configuration key %q", trainerr.ErrConfig, key)
		}

		switch key {
		case "iterations":
			n, err := asInt(value)
			if err != nil {
				return Config{}, fmt.Errorf("%w: iterations: %v", trainerr.ErrConfig, err)
			}
			cfg.Cycles = n
		case "deterministic_flag":
			// Acknowledged but not separately modeled: every run in this
			// pipeline is already deterministic given its seed.
		case "learning_rate":
			v, err := asFloat(value)
			if err != nil {
				return Config{}, fmt.Errorf("%w: learning_rate: %v", trainerr.ErrConfig, err)
			}
			cfg.Training.LearningRate = v
		case "exploration_rate":
			v, err := asFloat(value)
			if err != nil {
				return Config{}, fmt.Errorf("%w: exploration_rate: %v", trainerr.ErrConfig, err)
			}
			cfg.Exploration.WarmupRate = v
			cfg.Exploration.EpsStart = v
		case "batch_size":
			n, err := asInt(value)
			if err != nil {
				return Config{}, fmt.Errorf("%w: batch_size: %v", trainerr.ErrConfig, err)
			}
			cfg.Training.BatchSize = n
		case "games_per_cycle":
			n, err := asInt(value)
			if err != nil {
				return Config{}, fmt.Errorf("%w: games_per_cycle: %v", trainerr.ErrConfig, err)
			}
			cfg.SelfPlay.GamesPerCycle = n
		case "seed":
			n, err := asInt(value)
			if err != nil {
				return Config{}, fmt.Errorf("%w: seed: %v", trainerr.ErrConfig, err)
			}
			cfg.Seed = int64(n)
		case "name", "controller_type":
			// Identification only; not consulted by the orchestrator.
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
