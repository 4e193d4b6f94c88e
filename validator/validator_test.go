package validator

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chesstrain/agent"
	"chesstrain/config"
	"chesstrain/trainerr"
)

func testConfig() config.ValidatorConfig {
	return config.ValidatorConfig{
		Smoothing:            0.2,
		ClipThreshold:        10,
		MinGradientNorm:      0.001,
		MinPolicyEntropy:     0.1,
		LargeLossChangeBound: 1.0,
		QOverestimationBound: 0.5,
	}
}

func TestCheckFlagsNumericalInstabilityWithoutPerturbingEMA(t *testing.T) {
	v := New(testConfig())
	v.Check(agent.UpdateResult{Loss: 0.5, GradientNorm: 1.0, PolicyEntropy: 0.5}, 0.2, 0.1)

	report := v.Check(agent.UpdateResult{Loss: math.NaN(), GradientNorm: 1.0}, 0.2, 0.1)
	require.False(t, report.IsValid)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, NumericalInstability, report.Issues[0].Type)
	assert.Equal(t, 1.0, report.SmoothedGrad, "EMA must not move on a non-finite batch")
}

func TestCheckFlagsExplodingGradients(t *testing.T) {
	v := New(testConfig())
	report := v.Check(agent.UpdateResult{Loss: 0.1, GradientNorm: 50, PolicyEntropy: 0.5}, 0.2, 0.1)
	assert.False(t, report.IsValid)
	assert.Equal(t, ExplodingGradients, report.Issues[0].Type)
}

func TestCheckFlagsVanishingGradients(t *testing.T) {
	v := New(testConfig())
	report := v.Check(agent.UpdateResult{Loss: 0.1, GradientNorm: 0.0000001, PolicyEntropy: 0.5}, 0.2, 0.1)
	assert.False(t, report.IsValid)
	assert.Equal(t, VanishingGradients, report.Issues[0].Type)
}

func TestCheckFlagsPolicyCollapse(t *testing.T) {
	v := New(testConfig())
	report := v.Check(agent.UpdateResult{Loss: 0.1, GradientNorm: 1, PolicyEntropy: 0.01}, 0.2, 0.1)
	assert.False(t, report.IsValid)
	assert.Equal(t, PolicyCollapse, report.Issues[0].Type)
}

func TestCheckFlagsQValueOverestimation(t *testing.T) {
	v := New(testConfig())
	q, target := 2.0, 1.0
	report := v.Check(agent.UpdateResult{Loss: 0.1, GradientNorm: 1, PolicyEntropy: 0.5, QValueMean: &q, TargetValueMean: &target}, 0.2, 0.1)
	assert.False(t, report.IsValid)
	found := false
	for _, issue := range report.Issues {
		if issue.Type == QValueOverestimation {
			found = true
		}
	}
	assert.True(t, found)
}

func TestIssueErrWrapsValidationSentinel(t *testing.T) {
	v := New(testConfig())
	report := v.Check(agent.UpdateResult{Loss: 0.1, GradientNorm: 50, PolicyEntropy: 0.5}, 0.2, 0.1)
	require.NotEmpty(t, report.Issues)

	err := report.Issues[0].Err()
	assert.True(t, errors.Is(err, trainerr.ErrValidation))
	assert.Contains(t, err.Error(), "exploding_gradients")
}

func TestCheckValidBatchReportsNoIssues(t *testing.T) {
	v := New(testConfig())
	report := v.Check(agent.UpdateResult{Loss: 0.1, GradientNorm: 1, PolicyEntropy: 0.5}, 0.2, 0.1)
	assert.True(t, report.IsValid)
	assert.Empty(t, report.Issues)
}

func TestEMAConvergesTowardRepeatedValue(t *testing.T) {
	v := New(testConfig())
	for i := 0; i < 50; i++ {
		v.Check(agent.UpdateResult{Loss: 0.1, GradientNorm: 5, PolicyEntropy: 0.5}, 0.2, 0.1)
	}
	assert.InDelta(t, 5.0, v.smoothedGrad, 0.01)
}
