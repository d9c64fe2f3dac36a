// Package config parses the startup configuration bundle: listener
// settings, target groups, and listener rules.
package config

import "time"

// File is the raw YAML document shape. Load converts it into a
// validated Bundle.
type File struct {
	ListenerPort        int         `yaml:"listener_port"`
	ConnectionTimeoutMs int         `yaml:"connection_timeout_ms"`
	ProxyHeadersEnabled bool        `yaml:"proxy_headers_enabled"`
	SessionTTLMs        int         `yaml:"session_ttl_ms"`
	Groups              []GroupFile `yaml:"groups"`
	Rules               []RuleFile  `yaml:"rules"`
}

// GroupFile is one target-group spec as declared in YAML.
type GroupFile struct {
	Name        string           `yaml:"name"`
	Policy      string           `yaml:"policy"`
	Targets     []TargetFile     `yaml:"targets"`
	HealthCheck *HealthCheckFile `yaml:"health_check"`
}

// TargetFile is one endpoint within a group. Weight is only consulted
// for policy: weighted, where it must be >= 1.
type TargetFile struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURI string `yaml:"base_uri"`
	Weight  int    `yaml:"weight"`
}

// HealthCheckFile is a group's optional health-check parameters.
// Present iff health checks are enabled for that group.
type HealthCheckFile struct {
	Path             string `yaml:"path"`
	IntervalMs       int    `yaml:"interval_ms"`
	SucceedThreshold int    `yaml:"succeed_threshold"`
	FailureThreshold int    `yaml:"failure_threshold"`
}

// RuleFile is one listener rule: a path prefix, optional rewrite, and
// the target group it resolves to.
type RuleFile struct {
	Prefix  string `yaml:"prefix"`
	Rewrite string `yaml:"rewrite"`
	Group   string `yaml:"group"`
}

// Bundle is the validated, defaulted configuration the core is
// constructed from.
type Bundle struct {
	ListenerPort        int
	ConnectionTimeout   time.Duration
	ProxyHeadersEnabled bool
	SessionTTL          time.Duration
	Groups              []GroupFile
	Rules               []RuleFile
}

const (
	// PolicyRoundRobin selects targets in rotation.
	PolicyRoundRobin = "round_robin"
	// PolicyWeighted selects targets via smooth weighted round-robin.
	PolicyWeighted = "weighted"
	// PolicySticky pins a client fingerprint to a target for a TTL.
	PolicySticky = "sticky"
	// PolicyLRT selects the target with the lowest active-conns*ttfb.
	PolicyLRT = "lrt"
)
