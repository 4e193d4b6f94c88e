package agent

import (
	"sync"

	"chesstrain/experience"
)

// Guard serializes access to a non-reentrant Facade: rather than making
// the learner thread-safe, it serializes access via per-agent mutual
// exclusion held only for the duration of one action selection or batch
// update. Self-play workers call SelectAction through a Guard
// concurrently; the orchestrator's TrainBatch call takes the same lock,
// so a batch update never overlaps an in-flight action selection on the
// same underlying agent.
//
// This lets a Facade implementation assume it is never called from more
// than one goroutine at a time, without requiring every implementation
// to manage its own locking.
type Guard struct {
	mu    sync.Mutex
	inner Facade
}

// NewGuard wraps inner so all Facade methods are mutually exclusive.
func NewGuard(inner Facade) *Guard {
	return &Guard{inner: inner}
}

func (g *Guard) SelectAction(state []float64, validActions []int) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.SelectAction(state, validActions)
}

func (g *Guard) TrainBatch(batch []experience.Transition) (UpdateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.TrainBatch(batch)
}

func (g *Guard) GetMetrics() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.GetMetrics()
}

func (g *Guard) SetExplorationRate(rate float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inner.SetExplorationRate(rate)
}

func (g *Guard) SetNextActionProvider(provider NextActionProvider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inner.SetNextActionProvider(provider)
}

func (g *Guard) Save(path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.Save(path)
}

func (g *Guard) Load(path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.Load(path)
}

func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inner.Reset()
}
