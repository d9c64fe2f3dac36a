package lb

import "errors"

// ErrNoHealthyTargets is returned by a Policy when the eligible set is
// empty. Callers surface this as a 503.
var ErrNoHealthyTargets = errors.New("lb: no healthy targets")

// PickContext carries the per-request information a Policy may need
// beyond the eligible set — currently only the client fingerprint
// sticky routing keys off.
type PickContext struct {
	ClientFingerprint string
}

// Policy picks one target from a snapshot of the eligible set for a
// single request. Implementations must tolerate the eligible set
// changing between calls and must not retain eligible slices across
// calls without copying, since TargetGroup.eligible() returns a fresh
// slice each time.
type Policy interface {
	Pick(ctx PickContext, eligible []*Target) (*Target, error)

	// OnDispatch and OnComplete let LRT track active connections and
	// TTFB without every caller needing to know which policy is active.
	// Other policies implement these as no-ops.
	OnDispatch(t *Target)
	OnComplete(t *Target, ok bool, observedMs float64)
}

// basePolicy gives the non-LRT policies no-op dispatch/complete hooks
// so they don't each have to restate them.
type basePolicy struct{}

func (basePolicy) OnDispatch(*Target)                {}
func (basePolicy) OnComplete(*Target, bool, float64) {}
