package lb

import "sync"

// weightedState is the per-target bookkeeping for smooth weighted
// round-robin: a configured weight and a dynamically adjusted
// current-weight accumulator.
type weightedState struct {
	weight        int
	currentWeight int
}

// Weighted implements deterministic smooth weighted round-robin: each
// pick adds every eligible target's weight to its running
// current-weight, selects the argmax, then subtracts the total
// effective weight from the winner. Argmax ties fall to whichever
// target is encountered first in the eligible slice, which callers
// keep in declaration order.
type Weighted struct {
	basePolicy
	mu     sync.Mutex
	states map[string]*weightedState
}

// NewWeighted builds a Weighted policy over the full target set's
// weight map.
func NewWeighted(weights map[string]int, declaredOrder []string) *Weighted {
	states := make(map[string]*weightedState, len(declaredOrder))
	for _, id := range declaredOrder {
		states[id] = &weightedState{weight: weights[id]}
	}
	return &Weighted{states: states}
}

// Pick runs one tick of the smooth weighted round-robin algorithm over
// the eligible set, which it treats as already in declaration order.
func (w *Weighted) Pick(_ PickContext, eligible []*Target) (*Target, error) {
	if len(eligible) == 0 {
		return nil, ErrNoHealthyTargets
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	total := 0
	var winner *Target
	var winnerState *weightedState

	for _, t := range eligible {
		st := w.states[t.ID]
		if st == nil {
			continue
		}
		st.currentWeight += st.weight
		total += st.weight

		if winner == nil || st.currentWeight > winnerState.currentWeight {
			winner = t
			winnerState = st
		}
	}

	if total == 0 {
		return nil, ErrNoHealthyTargets
	}

	winnerState.currentWeight -= total
	return winner, nil
}
