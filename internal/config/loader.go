package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Validation errors, joined together by Parse (and so Load) so a single
// invalid document reports every problem at once rather than one at a
// time across repeated restarts.
var (
	ErrMissingWeights    = errors.New("config: weighted group missing a positive weight for one or more targets")
	ErrUnknownGroup      = errors.New("config: rule references a group that does not exist")
	ErrMalformedEndpoint = errors.New("config: target endpoint is missing host or has an invalid port")
	ErrMissingSessionTTL = errors.New("config: sticky group requires session_ttl_ms > 0")
	ErrEmptyGroupName    = errors.New("config: group name cannot be empty")
	ErrEmptyPrefix       = errors.New("config: rule prefix must be a non-empty absolute path")
	ErrBadRewrite        = errors.New("config: rule rewrite must be a prefix of the rule's path prefix")
	ErrUnknownPolicy     = errors.New("config: unknown selection policy")
	ErrNoTargets         = errors.New("config: group must declare at least one target")
)

// Load reads and validates a YAML configuration file into a Bundle.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and converts raw YAML bytes into a Bundle.
func Parse(data []byte) (*Bundle, error) {
	f := File{
		ConnectionTimeoutMs: 5000,
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: invalid YAML: %w", err)
	}

	for i := range f.Groups {
		applyHealthDefaults(&f.Groups[i])
	}

	if err := validate(f); err != nil {
		return nil, err
	}

	return &Bundle{
		ListenerPort:        f.ListenerPort,
		ConnectionTimeout:   time.Duration(f.ConnectionTimeoutMs) * time.Millisecond,
		ProxyHeadersEnabled: f.ProxyHeadersEnabled,
		SessionTTL:          time.Duration(f.SessionTTLMs) * time.Millisecond,
		Groups:              f.Groups,
		Rules:               f.Rules,
	}, nil
}

func applyHealthDefaults(g *GroupFile) {
	if g.HealthCheck == nil {
		return
	}
	hc := g.HealthCheck
	if hc.Path == "" {
		hc.Path = "/health"
	}
	if hc.IntervalMs == 0 {
		hc.IntervalMs = 30000
	}
	if hc.SucceedThreshold == 0 {
		hc.SucceedThreshold = 2
	}
	if hc.FailureThreshold == 0 {
		hc.FailureThreshold = 2
	}
}

// validate runs the fatal-at-startup checks: missing weights under
// weighted, unknown group referenced by a rule, malformed endpoints,
// and a missing session TTL for sticky groups.
func validate(f File) error {
	var errs []error

	groupNames := make(map[string]bool, len(f.Groups))
	for _, g := range f.Groups {
		if g.Name == "" {
			errs = append(errs, ErrEmptyGroupName)
			continue
		}
		groupNames[g.Name] = true

		if len(g.Targets) == 0 {
			errs = append(errs, fmt.Errorf("%w: group %q", ErrNoTargets, g.Name))
		}

		for _, t := range g.Targets {
			if t.Host == "" || t.Port <= 0 || t.Port > 65535 {
				errs = append(errs, fmt.Errorf("%w: group %q, host=%q port=%d", ErrMalformedEndpoint, g.Name, t.Host, t.Port))
			}
		}

		switch g.Policy {
		case PolicyRoundRobin, PolicyLRT:
			// no extra requirements
		case PolicyWeighted:
			for _, t := range g.Targets {
				if t.Weight < 1 {
					errs = append(errs, fmt.Errorf("%w: group %q, target %s:%d", ErrMissingWeights, g.Name, t.Host, t.Port))
				}
			}
		case PolicySticky:
			if f.SessionTTLMs <= 0 {
				errs = append(errs, fmt.Errorf("%w: group %q", ErrMissingSessionTTL, g.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("%w: group %q policy %q", ErrUnknownPolicy, g.Name, g.Policy))
		}
	}

	for _, r := range f.Rules {
		if r.Prefix == "" || r.Prefix[0] != '/' {
			errs = append(errs, fmt.Errorf("%w: %q", ErrEmptyPrefix, r.Prefix))
		}
		if r.Rewrite != "" && !strings.HasPrefix(r.Prefix, r.Rewrite) {
			errs = append(errs, fmt.Errorf("%w: rule %q rewrite %q", ErrBadRewrite, r.Prefix, r.Rewrite))
		}
		if !groupNames[r.Group] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownGroup, r.Group))
		}
	}

	return errors.Join(errs...)
}
