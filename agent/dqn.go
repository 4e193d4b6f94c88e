package agent

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"

	"chesstrain/experience"
	"chesstrain/rng"
	"chesstrain/trainerr"
)

// DQNOptions configures a DQN-like learner: a parameterized per-action
// Q-network sized for the chess action space.
type DQNOptions struct {
	StateSize    int
	ActionSpace  int
	HiddenSize   int
	LearningRate float64
	Discount     float64
	Exploration  float64
}

// DQN is the DQN-like Agent Facade: an epsilon-greedy policy over a
// per-action Q-network, trained by TrainBatch on externally-supplied
// mini-batches. The Experience Store is owned by the Orchestrator, not
// the agent, so DQN keeps no replay buffer of its own.
type DQN struct {
	opts DQNOptions
	net  *network

	explorationRate float64
	episodeCount    int
	recentLoss      float64
	recentEntropy   float64

	nextActionProvider NextActionProvider
	exploreStream      *rng.Stream
}

// NewDQN constructs a DQN-like agent whose weights are drawn from the
// registry's "network-init" stream.
func NewDQN(opts DQNOptions, reg *rng.Registry) *DQN {
	if opts.HiddenSize <= 0 {
		opts.HiddenSize = 128
	}
	return &DQN{
		opts:            opts,
		net:             newNetwork(opts.StateSize, opts.HiddenSize, opts.ActionSpace, opts.LearningRate, reg.Stream(rng.StreamNetworkInit)),
		explorationRate: opts.Exploration,
		exploreStream:   reg.Stream(rng.StreamExploration),
	}
}

// SelectAction chooses an action via epsilon-greedy over the Q-network's
// output restricted to validActions; it always returns a member of
// validActions.
func (d *DQN) SelectAction(state []float64, validActions []int) (int, error) {
	if len(validActions) == 0 {
		return 0, fmt.Errorf("agent: no valid actions to choose from")
	}

	if d.exploreStream.Float64() < d.explorationRate {
		return validActions[d.exploreStream.Intn(len(validActions))], nil
	}

	q, err := d.net.predict(state)
	if err != nil {
		return validActions[0], err
	}

	// Actions outside the network's output range cannot be scored; they are
	// skipped the same way maxMasked skips them during target computation.
	best := validActions[0]
	bestQ := math.Inf(-1)
	for _, a := range validActions {
		if a < 0 || a >= len(q) {
			continue
		}
		if q[a] > bestQ {
			bestQ = q[a]
			best = a
		}
	}
	return best, nil
}

// TrainBatch runs one DQN update step per transition in the batch, masking
// next-state Q-values to the legal action set reported by
// nextActionProvider when one is set. It stops processing the batch at
// the first non-finite loss/gradient, reporting that in UpdateResult and
// returning an error.
func (d *DQN) TrainBatch(batch []experience.Transition) (UpdateResult, error) {
	if len(batch) == 0 {
		return UpdateResult{}, fmt.Errorf("agent: empty training batch: %w", trainerr.ErrAgent)
	}

	var (
		totalLoss, totalGrad, totalEntropy float64
		totalQ, totalTarget                float64
		n                                  int
	)

	for _, t := range batch {
		q, err := d.net.predict(t.State)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("agent: predict failed: %w", fmt.Errorf("%w: %v", trainerr.ErrAgent, err))
		}
		targets := append([]float64(nil), q...)

		target := t.Reward
		if !t.Done {
			nextQ, err := d.net.predict(t.NextState)
			if err == nil {
				maxNext := maxMasked(nextQ, d.legalNext(t.NextState))
				target += d.opts.Discount * maxNext
			}
		}
		if t.Action >= 0 && t.Action < len(targets) {
			targets[t.Action] = target
		}

		loss, gradNorm, err := d.net.trainStep(t.State, targets)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("agent: train step failed: %w", fmt.Errorf("%w: %v", trainerr.ErrAgent, err))
		}

		totalLoss += loss
		totalGrad += gradNorm
		totalEntropy += softmaxEntropy(q)
		totalQ += maxOf(q)
		totalTarget += target
		n++

		if math.IsNaN(loss) || math.IsInf(loss, 0) || math.IsNaN(gradNorm) || math.IsInf(gradNorm, 0) {
			result := UpdateResult{
				Loss:          loss,
				GradientNorm:  gradNorm,
				PolicyEntropy: totalEntropy / float64(n),
			}
			d.recentLoss, d.recentEntropy = result.Loss, result.PolicyEntropy
			return result, fmt.Errorf("agent: numerical instability in batch: %w", trainerr.ErrNumerical)
		}
	}

	qMean := totalQ / float64(n)
	targetMean := totalTarget / float64(n)
	result := UpdateResult{
		Loss:            totalLoss / float64(n),
		GradientNorm:    totalGrad / float64(n),
		PolicyEntropy:   totalEntropy / float64(n),
		QValueMean:      &qMean,
		TargetValueMean: &targetMean,
	}
	d.recentLoss = result.Loss
	d.recentEntropy = result.PolicyEntropy
	d.episodeCount++
	return result, nil
}

func (d *DQN) legalNext(nextState []float64) []int {
	if d.nextActionProvider == nil {
		return nil // nil means "no mask": maxMasked treats it as all actions
	}
	return d.nextActionProvider(nextState)
}

func maxMasked(q []float64, mask []int) float64 {
	if len(mask) == 0 {
		return maxOf(q)
	}
	best := math.Inf(-1)
	for _, a := range mask {
		if a >= 0 && a < len(q) && q[a] > best {
			best = q[a]
		}
	}
	if math.IsInf(best, -1) {
		return 0
	}
	return best
}

func maxOf(q []float64) float64 {
	if len(q) == 0 {
		return 0
	}
	best := q[0]
	for _, v := range q[1:] {
		if v > best {
			best = v
		}
	}
	return best
}

// softmaxEntropy computes the entropy (in nats) of the softmax
// distribution over raw Q-values, used as the reported policy entropy.
func softmaxEntropy(q []float64) float64 {
	if len(q) == 0 {
		return 0
	}
	max := maxOf(q)
	var sum float64
	exps := make([]float64, len(q))
	for i, v := range q {
		exps[i] = math.Exp(v - max)
		sum += exps[i]
	}
	var entropy float64
	for _, e := range exps {
		p := e / sum
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}
	return entropy
}

// GetMetrics returns exploration rate, buffer size (always 0: this agent
// keeps no internal replay buffer, see the type doc), episode count, and
// recent loss/entropy.
func (d *DQN) GetMetrics() Metrics {
	return Metrics{
		ExplorationRate: d.explorationRate,
		BufferSize:      0,
		EpisodeCount:    d.episodeCount,
		RecentLoss:      d.recentLoss,
		RecentEntropy:   d.recentEntropy,
	}
}

func (d *DQN) SetExplorationRate(rate float64) { d.explorationRate = rate }

func (d *DQN) SetNextActionProvider(provider NextActionProvider) {
	d.nextActionProvider = provider
}

func (d *DQN) Reset() {
	// No internal transient state to clear: learned parameters (d.net)
	// are preserved.
}

type dqnSnapshot struct {
	Opts            DQNOptions
	Net             *network
	ExplorationRate float64
	EpisodeCount    int
}

func (d *DQN) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("agent: create state file: %w", fmt.Errorf("%w: %v", trainerr.ErrAgent, err))
	}
	defer f.Close()

	snap := dqnSnapshot{Opts: d.opts, Net: d.net, ExplorationRate: d.explorationRate, EpisodeCount: d.episodeCount}
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		return fmt.Errorf("agent: encode state: %w", fmt.Errorf("%w: %v", trainerr.ErrAgent, err))
	}
	return nil
}

func (d *DQN) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("agent: open state file: %w", fmt.Errorf("%w: %v", trainerr.ErrAgent, err))
	}
	defer f.Close()

	snap := dqnSnapshot{Net: &network{}}
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("agent: decode state: %w", fmt.Errorf("%w: %v", trainerr.ErrAgent, err))
	}
	d.opts = snap.Opts
	d.net = snap.Net
	d.explorationRate = snap.ExplorationRate
	d.episodeCount = snap.EpisodeCount
	return nil
}
