// Package validator implements the Training Validator: a
// pure, reporting-only inspector of pre/post-update metrics and the
// latest UpdateResult, with a typed issue taxonomy and EMA smoothing.
package validator

import (
	"fmt"
	"math"

	"chesstrain/agent"
	"chesstrain/config"
	"chesstrain/trainerr"
)

// IssueType is the taxonomy of training-health issues the Validator reports.
type IssueType int

const (
	ExplodingGradients IssueType = iota
	VanishingGradients
	PolicyCollapse
	NumericalInstability
	LargeLossChange
	ExplorationInsufficient
	QValueOverestimation
)

func (t IssueType) String() string {
	switch t {
	case ExplodingGradients:
		return "exploding_gradients"
	case VanishingGradients:
		return "vanishing_gradients"
	case PolicyCollapse:
		return "policy_collapse"
	case NumericalInstability:
		return "numerical_instability"
	case LargeLossChange:
		return "large_loss_change"
	case ExplorationInsufficient:
		return "exploration_insufficient"
	case QValueOverestimation:
		return "q_value_overestimation"
	default:
		return "unknown"
	}
}

// Severity ranks an Issue's urgency.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

// Issue is one Validator finding.
type Issue struct {
	Type     IssueType
	Severity Severity
	Message  string
}

// Err renders the issue as an error wrapping trainerr.ErrValidation, so
// callers that log or propagate findings can match them with errors.Is
// like every other error kind in the pipeline.
func (i Issue) Err() error {
	return fmt.Errorf("%w: %s: %s", trainerr.ErrValidation, i.Type, i.Message)
}

// Report is the Validator's output for one train_batch call.
type Report struct {
	IsValid         bool
	Issues          []Issue
	SmoothedGrad    float64
	SmoothedEntropy float64
}

// Validator holds the running EMAs of gradient norm and policy entropy. It
// never mutates the agent it inspects; it only reports.
type Validator struct {
	cfg config.ValidatorConfig

	haveEMA         bool
	smoothedGrad    float64
	smoothedEntropy float64

	prevLoss       float64
	havePrevLoss   bool
	prevReward     float64
	havePrevReward bool
}

// New constructs a Validator from the training configuration's validator
// section.
func New(cfg config.ValidatorConfig) *Validator {
	if cfg.Smoothing <= 0 {
		cfg.Smoothing = 0.2
	}
	return &Validator{cfg: cfg}
}

// Check inspects one batch's UpdateResult alongside the pre-update
// exploration rate and a recent-reward trend signal, updating the EMAs and
// returning a Report. explorationRate and recentRewardTrend feed
// ExplorationInsufficient, which needs both a decaying exploration rate
// and a regressing reward signal to fire.
func (v *Validator) Check(result agent.UpdateResult, explorationRate, recentRewardTrend float64) Report {
	var issues []Issue

	if math.IsNaN(result.Loss) || math.IsInf(result.Loss, 0) ||
		math.IsNaN(result.GradientNorm) || math.IsInf(result.GradientNorm, 0) {
		issues = append(issues, Issue{
			Type: NumericalInstability, Severity: SeverityCritical,
			Message: fmt.Sprintf("non-finite update result: loss=%v grad=%v", result.Loss, result.GradientNorm),
		})
		// A non-finite batch does not perturb the EMAs: there is no
		// meaningful value to smooth in.
		return Report{IsValid: false, Issues: issues, SmoothedGrad: v.smoothedGrad, SmoothedEntropy: v.smoothedEntropy}
	}

	v.updateEMA(result.GradientNorm, result.PolicyEntropy)

	if result.GradientNorm > v.cfg.ClipThreshold {
		issues = append(issues, Issue{
			Type: ExplodingGradients, Severity: SeverityWarning,
			Message: fmt.Sprintf("gradient norm %.4f exceeds clip threshold %.4f", result.GradientNorm, v.cfg.ClipThreshold),
		})
	}
	if result.GradientNorm < v.cfg.MinGradientNorm {
		issues = append(issues, Issue{
			Type: VanishingGradients, Severity: SeverityWarning,
			Message: fmt.Sprintf("gradient norm %.8f below minimum %.8f", result.GradientNorm, v.cfg.MinGradientNorm),
		})
	}
	if result.PolicyEntropy < v.cfg.MinPolicyEntropy {
		issues = append(issues, Issue{
			Type: PolicyCollapse, Severity: SeverityWarning,
			Message: fmt.Sprintf("policy entropy %.4f below minimum %.4f", result.PolicyEntropy, v.cfg.MinPolicyEntropy),
		})
	}
	if v.havePrevLoss {
		delta := math.Abs(result.Loss - v.prevLoss)
		if delta > v.cfg.LargeLossChangeBound {
			issues = append(issues, Issue{
				Type: LargeLossChange, Severity: SeverityWarning,
				Message: fmt.Sprintf("loss changed by %.4f, exceeding bound %.4f", delta, v.cfg.LargeLossChangeBound),
			})
		}
	}
	if result.QValueMean != nil && result.TargetValueMean != nil {
		if *result.QValueMean-*result.TargetValueMean > v.cfg.QOverestimationBound {
			issues = append(issues, Issue{
				Type: QValueOverestimation, Severity: SeverityWarning,
				Message: fmt.Sprintf("q_value_mean exceeds target_value_mean by %.4f", *result.QValueMean-*result.TargetValueMean),
			})
		}
	}
	if explorationRate < 0.1 && recentRewardTrend < 0 {
		issues = append(issues, Issue{
			Type: ExplorationInsufficient, Severity: SeverityInfo,
			Message: fmt.Sprintf("exploration rate %.4f with a regressing reward trend %.4f", explorationRate, recentRewardTrend),
		})
	}

	v.prevLoss, v.havePrevLoss = result.Loss, true
	v.prevReward, v.havePrevReward = recentRewardTrend, true

	return Report{
		IsValid:         len(issues) == 0,
		Issues:          issues,
		SmoothedGrad:    v.smoothedGrad,
		SmoothedEntropy: v.smoothedEntropy,
	}
}

func (v *Validator) updateEMA(grad, entropy float64) {
	if !v.haveEMA {
		v.smoothedGrad, v.smoothedEntropy = grad, entropy
		v.haveEMA = true
		return
	}
	alpha := v.cfg.Smoothing
	v.smoothedGrad = alpha*grad + (1-alpha)*v.smoothedGrad
	v.smoothedEntropy = alpha*entropy + (1-alpha)*v.smoothedEntropy
}
