package experience

import (
	"math"

	"chesstrain/rng"
)

// CleanupStrategy selects which items are evicted when the store overflows.
type CleanupStrategy int

const (
	OldestFirst CleanupStrategy = iota
	LowestQuality
	Random
)

// SampleStrategy selects how sample_batch draws items.
type SampleStrategy int

const (
	Uniform SampleStrategy = iota
	Recent
	Mixed
)

// Config configures a Store. CleanupRatio is the fraction of capacity
// evicted once an add overflows it; MixedRecentFraction is p_recent for
// the Mixed sampling strategy, defaulting to 0.5.
type Config struct {
	Capacity            int
	Cleanup             CleanupStrategy
	CleanupRatio        float64
	MixedRecentFraction float64
}

// DefaultConfig returns sane defaults: p_recent = 0.5.
func DefaultConfig(capacity int) Config {
	return Config{
		Capacity:            capacity,
		Cleanup:             OldestFirst,
		CleanupRatio:        0.1,
		MixedRecentFraction: 0.5,
	}
}

// Store is the bounded, ordered, quality-scored Experience Store. It is
// not safe for concurrent writers: adds and samples both happen only from
// the Orchestrator thread after the self-play barrier, so the Store
// performs no internal locking of its own.
type Store struct {
	cfg   Config
	items []scored // insertion order, oldest first
	rng   *rng.Stream
}

// NewStore constructs a Store sampling from the registry's "replay" stream.
func NewStore(cfg Config, reg *rng.Registry) *Store {
	if cfg.MixedRecentFraction == 0 {
		cfg.MixedRecentFraction = 0.5
	}
	return &Store{
		cfg: cfg,
		rng: reg.Stream(rng.StreamReplay),
	}
}

// Size returns the current number of stored transitions.
func (s *Store) Size() int {
	return len(s.items)
}

// Clear empties the store.
func (s *Store) Clear() {
	s.items = nil
}

// AddMany appends transitions with the given quality scores (parallel
// slices; scores default to 0.5 if shorter than transitions) and triggers
// cleanup if the store would exceed capacity: evict
// ceil(r*N) items via the active strategy. Cleanup never reorders the
// items it keeps, so survivors stay in insertion order. OldestFirst evicts
// from the front, so an appended item goes only after every older item;
// LowestQuality and Random may evict any item, including ones appended by
// this call.
func (s *Store) AddMany(transitions []Transition, scores []float64) {
	for i, t := range transitions {
		q := 0.5
		if i < len(scores) {
			q = scores[i]
		}
		s.items = append(s.items, scored{t: t, score: q})
	}

	if s.cfg.Capacity > 0 && len(s.items) > s.cfg.Capacity {
		s.cleanup()
	}
}

func (s *Store) cleanup() {
	n := s.cfg.Capacity
	evict := int(math.Ceil(s.cfg.CleanupRatio * float64(n)))
	// Always evict enough to return to capacity even if the ratio alone
	// would not (e.g. a single huge AddMany call).
	overflow := len(s.items) - n
	if overflow > evict {
		evict = overflow
	}
	if evict > len(s.items) {
		evict = len(s.items)
	}
	if evict <= 0 {
		return
	}

	switch s.cfg.Cleanup {
	case OldestFirst:
		s.items = s.items[evict:]

	case LowestQuality:
		// Stable-sort indices by (score asc, age asc i.e. original index
		// asc) so ties break toward the older item, then drop the lowest
		// `evict` indices while preserving the remaining items' relative
		// insertion order.
		idx := make([]int, len(s.items))
		for i := range idx {
			idx[i] = i
		}
		// insertion sort is fine here; stores stay in the thousands and
		// cleanup is already an O(N) rebuild.
		for i := 1; i < len(idx); i++ {
			j := i
			for j > 0 && s.items[idx[j]].score < s.items[idx[j-1]].score {
				idx[j], idx[j-1] = idx[j-1], idx[j]
				j--
			}
		}
		drop := make(map[int]bool, evict)
		for _, i := range idx[:evict] {
			drop[i] = true
		}
		kept := s.items[:0:0]
		for i, it := range s.items {
			if !drop[i] {
				kept = append(kept, it)
			}
		}
		s.items = kept

	case Random:
		perm := s.rng.Perm(len(s.items))
		drop := make(map[int]bool, evict)
		for _, i := range perm[:evict] {
			drop[i] = true
		}
		kept := s.items[:0:0]
		for i, it := range s.items {
			if !drop[i] {
				kept = append(kept, it)
			}
		}
		s.items = kept
	}
}

// SampleBatch draws up to k transitions per strategy.
// k == 0 or an empty store returns an empty, non-nil batch without error.
func (s *Store) SampleBatch(k int, strategy SampleStrategy) []Transition {
	if k <= 0 || len(s.items) == 0 {
		return []Transition{}
	}
	if k > len(s.items) {
		k = len(s.items)
	}

	switch strategy {
	case Recent:
		return s.sampleRecent(k)
	case Mixed:
		return s.sampleMixed(k)
	default:
		return s.sampleUniform(k)
	}
}

// sampleUniform draws k distinct indices without replacement via a
// Fisher-Yates partial shuffle driven by the replay stream, so batch
// ordering is stable across equal seeds and identical store contents.
func (s *Store) sampleUniform(k int) []Transition {
	n := len(s.items)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	s.rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	out := make([]Transition, k)
	for i := 0; i < k; i++ {
		out[i] = s.items[idx[i]].t
	}
	return out
}

// sampleRecent returns the last k insertions, in insertion order.
func (s *Store) sampleRecent(k int) []Transition {
	start := len(s.items) - k
	out := make([]Transition, k)
	for i := 0; i < k; i++ {
		out[i] = s.items[start+i].t
	}
	return out
}

// sampleMixed returns floor(p_recent*k) recent items followed by a uniform
// sample (without replacement, and without re-selecting the recent items)
// from the remainder.
func (s *Store) sampleMixed(k int) []Transition {
	p := s.cfg.MixedRecentFraction
	nRecent := int(p * float64(k))
	if nRecent > k {
		nRecent = k
	}
	if nRecent > len(s.items) {
		nRecent = len(s.items)
	}

	out := make([]Transition, 0, k)
	out = append(out, s.sampleRecent(nRecent)...)

	remaining := k - nRecent
	if remaining <= 0 {
		return out
	}

	poolSize := len(s.items) - nRecent
	if poolSize <= 0 {
		return out
	}
	if remaining > poolSize {
		remaining = poolSize
	}

	idx := make([]int, poolSize)
	for i := range idx {
		idx[i] = i // indices into items[:poolSize], i.e. excluding the recent tail
	}
	s.rng.Shuffle(poolSize, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	for i := 0; i < remaining; i++ {
		out = append(out, s.items[idx[i]].t)
	}
	return out
}

// QualityOf returns the mean quality score of the given batch's matching
// stored items. Transitions not found in the store (e.g. already evicted)
// are ignored; an empty or wholly-unmatched batch returns 0.
func (s *Store) QualityOf(batch []Transition) float64 {
	if len(batch) == 0 {
		return 0
	}
	// Quality is tracked by value identity (first state element, action,
	// reward, done), since
	// Transition carries no store-assigned id; this is a reporting-only
	// metric so an approximate match is acceptable.
	lookup := make(map[transitionKey]float64, len(s.items))
	for _, it := range s.items {
		lookup[keyOf(it.t)] = it.score
	}

	var sum float64
	var n int
	for _, t := range batch {
		if q, ok := lookup[keyOf(t)]; ok {
			sum += q
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

type transitionKey struct {
	action int
	reward float64
	done   bool
	state0 float64
}

func keyOf(t Transition) transitionKey {
	var s0 float64
	if len(t.State) > 0 {
		s0 = t.State[0]
	}
	return transitionKey{action: t.Action, reward: t.Reward, done: t.Done, state0: s0}
}

// Contains reports whether every transition in batch is a value-match for
// some currently-stored item.
func (s *Store) Contains(batch []Transition) bool {
	lookup := make(map[transitionKey]bool, len(s.items))
	for _, it := range s.items {
		lookup[keyOf(it.t)] = true
	}
	for _, t := range batch {
		if !lookup[keyOf(t)] {
			return false
		}
	}
	return true
}
