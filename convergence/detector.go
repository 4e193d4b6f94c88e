// Package convergence implements the Convergence Detector:
// stability analysis over a sliding window of performance scores, using
// gonum's stat package for the OLS trend line and mean/stddev.
package convergence

import "gonum.org/v1/gonum/stat"

// Status classifies the trend/stability of a performance-score window.
type Status int

const (
	Stagnant Status = iota
	Improving
	Converged
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case Improving:
		return "improving"
	default:
		return "stagnant"
	}
}

// Report is the Detector's output for one window.
type Report struct {
	Status    Status
	Trend     float64 // OLS slope over the window
	Stability float64 // 1 / (1 + sigma/|mu|), degenerate case -> 1
	Mean      float64
	StdDev    float64
}

// Detector tracks a sliding window of performance scores.
type Detector struct {
	window int
	scores []float64
}

// New constructs a Detector retaining the last window scores. window <= 0
// means "unbounded" (retain everything observed).
func New(window int) *Detector {
	return &Detector{window: window}
}

// Observe appends one performance score, trimming to the configured
// window.
func (d *Detector) Observe(score float64) {
	d.scores = append(d.scores, score)
	if d.window > 0 && len(d.scores) > d.window {
		d.scores = d.scores[len(d.scores)-d.window:]
	}
}

// Evaluate computes the current trend, stability, and status over the
// retained window. With fewer than two observations, the
// trend is reported as 0 and status Stagnant.
func (d *Detector) Evaluate() Report {
	n := len(d.scores)
	if n < 2 {
		return Report{Status: Stagnant}
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	_, trend := stat.LinearRegression(x, d.scores, nil, false)

	mean, stddev := stat.MeanStdDev(d.scores, nil)

	var stability float64
	if stddev < 1e-9 && absf(mean) < 1e-9 {
		stability = 1
	} else {
		stability = 1 / (1 + stddev/absf(mean))
	}

	status := Stagnant
	switch {
	case stability > 0.9 && absf(trend) < 0.01:
		status = Converged
	case trend > 0.01:
		status = Improving
	}

	return Report{Status: status, Trend: trend, Stability: stability, Mean: mean, StdDev: stddev}
}

// Reset clears the retained window.
func (d *Detector) Reset() {
	d.scores = nil
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
