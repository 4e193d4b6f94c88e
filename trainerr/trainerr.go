// Package trainerr defines the error kinds shared across the training
// pipeline. Components wrap one of these sentinels with
// fmt.Errorf("...: %w", ...) so callers can recover with errors.Is instead
// of string matching.
package trainerr

import "errors"

var (
	// ErrConfig signals an invalid configuration. Fatal during init.
	ErrConfig = errors.New("config error")

	// ErrIO signals a checkpoint or model read/write failure. Retried once
	// by the caller, then logged.
	ErrIO = errors.New("io error")

	// ErrAgent signals a save/load/update failure on an Agent Facade. The
	// batch is skipped and the cycle continues.
	ErrAgent = errors.New("agent error")

	// ErrEnvironment signals an invalid action or illegal step info from an
	// Environment Facade. The game is aborted and the pool continues.
	ErrEnvironment = errors.New("environment error")

	// ErrValidation signals a training-health issue raised by the
	// Validator. Informational and non-fatal; it may influence later
	// policy but never aborts the cycle.
	ErrValidation = errors.New("validation issue")

	// ErrNumerical signals NaN/Inf in an UpdateResult. The batch is
	// aborted; the cycle continues.
	ErrNumerical = errors.New("numerical error")

	// ErrCancelled signals a pause/stop request honored between cycles.
	ErrCancelled = errors.New("cancelled")
)
