package orchestrator

import (
	"errors"
	"math"

	"chesstrain/trainerr"
	"chesstrain/validator"
)

// trainBatches chooses batch count
// b = clamp(floor(size*training_ratio/batch_size), 1, max_batches), then
// samples/trains/validates b times. The orchestrator skips batch training
// entirely when the store holds fewer items than one batch. A batch whose
// TrainBatch call errors is logged and skipped and adds nothing to the
// averages; only a numerical failure (trainerr.ErrNumerical) still hands
// its UpdateResult to the Validator, so NumericalInstability is reported.
func (o *Orchestrator) trainBatches() (batchCount int, avgLoss, avgGrad, avgEntropy float64, issues []validator.Issue) {
	size := o.store.Size()
	batchSize := o.cfg.Training.BatchSize
	if size < batchSize {
		return 0, 0, 0, 0, nil
	}

	b := int(math.Floor(float64(size) * o.currentRatio / float64(batchSize)))
	if b < 1 {
		b = 1
	}
	if b > o.cfg.Training.MaxBatches {
		b = o.cfg.Training.MaxBatches
	}

	recentRewardTrend := o.schedTrend.Evaluate().Trend

	var sumLoss, sumGrad, sumEntropy float64
	var successful int

	for i := 0; i < b; i++ {
		batch := o.store.SampleBatch(batchSize, o.cfg.Experience.SampleStrategy)
		if len(batch) == 0 {
			continue
		}

		result, err := o.learner.TrainBatch(batch)
		if err != nil && !errors.Is(err, trainerr.ErrNumerical) {
			// An agent-level failure carries no meaningful UpdateResult to
			// inspect; a numerical one does (the Validator must see the
			// NaN/Inf to raise NumericalInstability).
			o.logger.Warn("batch training failed, skipping", "cycle", o.cycle, "batch", i, "err", err)
			continue
		}
		if err != nil {
			o.logger.Warn("numerical instability in batch, aborting it", "cycle", o.cycle, "batch", i, "err", err)
		}

		rep := o.valid.Check(result, o.currentExploration, recentRewardTrend)
		for _, issue := range rep.Issues {
			o.logger.Warn("training health issue", "cycle", o.cycle, "batch", i, "err", issue.Err())
		}
		issues = append(issues, rep.Issues...)

		if err == nil && finite(result.Loss) && finite(result.GradientNorm) {
			sumLoss += result.Loss
			sumGrad += result.GradientNorm
			sumEntropy += result.PolicyEntropy
			successful++
		}
	}

	if successful > 0 {
		avgLoss = sumLoss / float64(successful)
		avgGrad = sumGrad / float64(successful)
		avgEntropy = sumEntropy / float64(successful)
	}
	return b, avgLoss, avgGrad, avgEntropy, issues
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// adjustPolicyFromIssues expresses the Validator's findings as a policy
// change made after the cycle's batches rather than a mid-batch mutation:
// PolicyCollapse or ExplorationInsufficient nudge exploration back up;
// ExplodingGradients nudges the training ratio down, so the next cycle
// runs fewer batches. The exploration change takes effect at once, for
// this cycle's evaluation, and is replaced when the next cycle's
// exploration schedule sets the rate; it does not carry into that cycle's
// self-play.
func (o *Orchestrator) adjustPolicyFromIssues(issues []validator.Issue) {
	var bumpExploration, dampenRatio bool
	for _, issue := range issues {
		switch issue.Type {
		case validator.PolicyCollapse, validator.ExplorationInsufficient:
			bumpExploration = true
		case validator.ExplodingGradients:
			dampenRatio = true
		}
	}

	if bumpExploration {
		next := math.Min(o.cfg.Exploration.WarmupRate, o.currentExploration*1.5+0.01)
		o.learner.SetExplorationRate(next)
		o.currentExploration = next
	}
	if dampenRatio {
		floor := o.cfg.Scheduling.TrainingRatioMin
		if floor <= 0 {
			floor = 0.01
		}
		o.currentRatio = math.Max(floor, o.currentRatio*0.9)
	}
}
