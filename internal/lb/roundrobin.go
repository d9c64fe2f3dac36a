package lb

import "sync/atomic"

// RoundRobin cycles through the eligible set in declared order, one
// atomic counter per group.
type RoundRobin struct {
	basePolicy
	counter uint64
}

// NewRoundRobin constructs a fresh round-robin policy with its
// counter at zero.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Pick returns eligible[c mod n] and atomically advances the counter.
func (r *RoundRobin) Pick(_ PickContext, eligible []*Target) (*Target, error) {
	if len(eligible) == 0 {
		return nil, ErrNoHealthyTargets
	}
	c := atomic.AddUint64(&r.counter, 1) - 1
	return eligible[c%uint64(len(eligible))], nil
}
