package config

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/songzhibin97/edgelb/internal/health"
	"github.com/songzhibin97/edgelb/internal/lb"
	"github.com/songzhibin97/edgelb/internal/router"
)

// Built holds the fully wired components a Bundle assembles into: one
// lb.Group per configured group, and the RuleMatcher over the
// configured rules. Groups is keyed by name for the Listener's rule
// resolution step.
type Built struct {
	Groups  map[string]*lb.Group
	Matcher *router.Matcher
}

// Build resolves DNS for every target, constructs each group's
// selection policy and (if configured) health.Supervisor, and compiles
// the rule table. DNS resolution happens exactly once, here, at
// startup; the running core never re-resolves.
func Build(b *Bundle, logger *zap.Logger) (*Built, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	groups := make(map[string]*lb.Group, len(b.Groups))
	for _, g := range b.Groups {
		grp, err := buildGroup(g, b.SessionTTL, logger)
		if err != nil {
			return nil, fmt.Errorf("config: building group %q: %w", g.Name, err)
		}
		groups[g.Name] = grp
	}

	rules := make([]router.Rule, len(b.Rules))
	for i, r := range b.Rules {
		rules[i] = router.Rule{Prefix: r.Prefix, Rewrite: r.Rewrite, Group: r.Group}
	}

	return &Built{Groups: groups, Matcher: router.NewMatcher(rules)}, nil
}

func buildGroup(g GroupFile, sessionTTL time.Duration, logger *zap.Logger) (*lb.Group, error) {
	var targets []*lb.Target
	weights := make(map[string]int)
	var declaredOrder []string
	endpoints := make([]health.Endpoint, 0)

	for _, tf := range g.Targets {
		addrs, err := resolve(tf.Host)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", tf.Host, err)
		}
		for i, addr := range addrs {
			id := fmt.Sprintf("%s#%s:%d", g.Name, addr, tf.Port)
			if len(addrs) > 1 {
				id = fmt.Sprintf("%s-%d", id, i)
			}
			t := lb.NewTarget(id, addr, tf.Port, tf.BaseURI)
			targets = append(targets, t)
			weights[id] = tf.Weight
			declaredOrder = append(declaredOrder, id)
			endpoints = append(endpoints, health.Endpoint{ID: id, Host: addr, Port: tf.Port})
		}
	}

	var supervisor *health.Supervisor
	if g.HealthCheck != nil {
		cfg := health.Config{
			Path:             g.HealthCheck.Path,
			Interval:         time.Duration(g.HealthCheck.IntervalMs) * time.Millisecond,
			SucceedThreshold: g.HealthCheck.SucceedThreshold,
			FailureThreshold: g.HealthCheck.FailureThreshold,
		}
		supervisor = health.NewSupervisor(g.Name, endpoints, cfg, health.WithLogger(logger))
	}

	policy, err := buildPolicy(g.Policy, weights, declaredOrder, sessionTTL)
	if err != nil {
		return nil, err
	}

	var view interface {
		IsHealthy(id string) bool
	}
	if supervisor != nil {
		view = supervisor
	}

	return lb.NewGroup(g.Name, targets, policy, view), nil
}

func buildPolicy(policy string, weights map[string]int, declaredOrder []string, sessionTTL time.Duration) (lb.Policy, error) {
	switch policy {
	case PolicyRoundRobin:
		return lb.NewRoundRobin(), nil
	case PolicyWeighted:
		return lb.NewWeighted(weights, declaredOrder), nil
	case PolicySticky:
		return lb.NewSticky(sessionTTL, nil), nil
	case PolicyLRT:
		return lb.NewLRT(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
}

// resolve returns every address a host resolves to. Literal IPs
// resolve to themselves without a network round trip; hostnames
// resolve to one Target per returned address.
func resolve(host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}
	return net.DefaultResolver.LookupHost(context.Background(), host)
}
