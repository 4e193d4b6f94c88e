package orchestrator

import "sync/atomic"

// State is the top-level orchestrator state machine:
// Uninitialized -> Initialized -> Running <-> Paused -> Stopping -> Stopped.
type State int32

const (
	Uninitialized State = iota
	Initialized
	Running
	Paused
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "uninitialized"
	}
}

// stateBox is a small atomic wrapper around a typed, race-free state
// value, checked between cycle iterations.
type stateBox struct {
	v int32
}

func (b *stateBox) load() State   { return State(atomic.LoadInt32(&b.v)) }
func (b *stateBox) store(s State) { atomic.StoreInt32(&b.v, int32(s)) }
func (b *stateBox) cas(old, new_ State) bool {
	return atomic.CompareAndSwapInt32(&b.v, int32(old), int32(new_))
}
