package orchestrator

import (
	"time"

	"chesstrain/convergence"
	"chesstrain/validator"
)

// CycleMetrics aggregates one cycle's outcome.
type CycleMetrics struct {
	Cycle                int
	GamesPlayed          int
	TransitionsCollected int
	AverageGameLength    float64
	AverageLoss          float64
	AverageGradNorm      float64
	AverageEntropy       float64
	BatchCount           int
	WinRate              float64
	DrawRate             float64
	LossRate             float64
	PerformanceScore     float64
	Duration             time.Duration
}

// PerformanceSnapshot summarizes one cycle's evaluation and training
// signals for the Report. Convergence detection and rollback work from the
// orchestrator's own history of performance scores, not from these
// snapshots.
type PerformanceSnapshot struct {
	Cycle        int
	OverallScore float64
	WinRate      float64
	DrawRate     float64
	Loss         float64
	Entropy      float64
}

// Report is handed to the orchestrator's OnReport hook after each cycle:
// CycleMetrics plus the Validator's latest issues and the Convergence
// Detector's latest status. Rendering a Report is out of scope; the
// orchestrator only needs somewhere to hand the data.
type Report struct {
	Metrics          CycleMetrics
	Snapshot         PerformanceSnapshot
	ValidatorIssues  []validator.Issue
	Convergence      convergence.Report
	IsBestCheckpoint bool
	RolledBack       bool
}
