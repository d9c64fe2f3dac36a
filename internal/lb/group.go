package lb

import (
	"context"

	"github.com/songzhibin97/edgelb/internal/health"
)

// healthView is the read-only slice of Supervisor that Group depends
// on, so a group with checks disabled needs no supervisor at all.
type healthView interface {
	IsHealthy(id string) bool
}

// Group is a named pool of targets sharing a selection policy and an
// optional health supervisor.
type Group struct {
	Name       string
	targets    []*Target
	policy     Policy
	supervisor healthView // nil when health checks are disabled
}

// NewGroup builds a Group. supervisor may be nil, in which case
// Eligible returns every target unconditionally (checks disabled).
func NewGroup(name string, targets []*Target, policy Policy, supervisor healthView) *Group {
	return &Group{Name: name, targets: targets, policy: policy, supervisor: supervisor}
}

// Eligible returns the targets currently considered live, in the
// group's declared order. With health checks enabled this is the
// subset whose Supervisor.IsHealthy is true; with checks disabled it
// is every target.
func (g *Group) Eligible() []*Target {
	if g.supervisor == nil {
		out := make([]*Target, len(g.targets))
		copy(out, g.targets)
		return out
	}
	out := make([]*Target, 0, len(g.targets))
	for _, t := range g.targets {
		if g.supervisor.IsHealthy(t.ID) {
			out = append(out, t)
		}
	}
	return out
}

// Pick resolves the eligible set and asks the group's policy to
// choose one target, returning ErrNoHealthyTargets if none qualify.
func (g *Group) Pick(ctx PickContext) (*Target, error) {
	return g.policy.Pick(ctx, g.Eligible())
}

// RecordDispatch and RecordComplete let the listener notify the
// policy of request lifecycle events without knowing which policy is
// active (only LRT cares; others no-op).
func (g *Group) RecordDispatch(t *Target) {
	g.policy.OnDispatch(t)
}

func (g *Group) RecordComplete(t *Target, ok bool, observedMs float64) {
	g.policy.OnComplete(t, ok, observedMs)
}

// Targets returns the group's full target list, regardless of health
// (used by callers that inspect target identity or metrics).
func (g *Group) Targets() []*Target {
	return g.targets
}

// Supervisor returns the group's health supervisor concretely, or nil
// if checks are disabled. Exposed so the caller that constructed the
// group can Start/Stop it; Group itself never reaches into its
// internals beyond IsHealthy.
func (g *Group) Supervisor() *health.Supervisor {
	sup, _ := g.supervisor.(*health.Supervisor)
	return sup
}

// StartHealth starts the group's supervisor, if any.
func (g *Group) StartHealth(ctx context.Context) {
	if sup := g.Supervisor(); sup != nil {
		sup.Start(ctx)
	}
}

// StopHealth stops the group's supervisor, if any.
func (g *Group) StopHealth() {
	if sup := g.Supervisor(); sup != nil {
		sup.Stop()
	}
}
