package config

import (
	"errors"
	"testing"
)

const minimalYAML = `
listener_port: 8080
groups:
  - name: api
    policy: round_robin
    targets:
      - host: 127.0.0.1
        port: 9001
rules:
  - prefix: /api
    group: api
`

func TestParseMinimalBundle(t *testing.T) {
	b, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b.ListenerPort != 8080 {
		t.Fatalf("got listener_port %d, want 8080", b.ListenerPort)
	}
	if len(b.Groups) != 1 || len(b.Rules) != 1 {
		t.Fatalf("got %d groups, %d rules, want 1 and 1", len(b.Groups), len(b.Rules))
	}
}

func TestParseDefaultsConnectionTimeout(t *testing.T) {
	b, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b.ConnectionTimeout.Milliseconds() != 5000 {
		t.Fatalf("got connection timeout %v, want the 5000ms default", b.ConnectionTimeout)
	}
}

func TestParseHealthCheckDefaults(t *testing.T) {
	doc := `
listener_port: 8080
groups:
  - name: api
    policy: round_robin
    targets:
      - host: 127.0.0.1
        port: 9001
    health_check: {}
rules:
  - prefix: /api
    group: api
`
	b, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	hc := b.Groups[0].HealthCheck
	if hc == nil {
		t.Fatal("expected health_check to be non-nil once declared, even empty")
	}
	if hc.Path != "/health" || hc.IntervalMs != 30000 || hc.SucceedThreshold != 2 || hc.FailureThreshold != 2 {
		t.Fatalf("got %+v, want spec defaults (path=/health interval=30000 succeed=2 failure=2)", hc)
	}
}

func TestParseRejectsUnknownGroupReference(t *testing.T) {
	doc := `
listener_port: 8080
groups:
  - name: api
    policy: round_robin
    targets:
      - host: 127.0.0.1
        port: 9001
rules:
  - prefix: /api
    group: missing
`
	_, err := Parse([]byte(doc))
	if !errors.Is(err, ErrUnknownGroup) {
		t.Fatalf("got %v, want ErrUnknownGroup", err)
	}
}

func TestParseRejectsWeightedGroupMissingWeight(t *testing.T) {
	doc := `
listener_port: 8080
groups:
  - name: api
    policy: weighted
    targets:
      - host: 127.0.0.1
        port: 9001
rules:
  - prefix: /api
    group: api
`
	_, err := Parse([]byte(doc))
	if !errors.Is(err, ErrMissingWeights) {
		t.Fatalf("got %v, want ErrMissingWeights", err)
	}
}

func TestParseRejectsStickyGroupWithoutSessionTTL(t *testing.T) {
	doc := `
listener_port: 8080
groups:
  - name: api
    policy: sticky
    targets:
      - host: 127.0.0.1
        port: 9001
rules:
  - prefix: /api
    group: api
`
	_, err := Parse([]byte(doc))
	if !errors.Is(err, ErrMissingSessionTTL) {
		t.Fatalf("got %v, want ErrMissingSessionTTL", err)
	}
}

func TestParseRejectsMalformedEndpoint(t *testing.T) {
	doc := `
listener_port: 8080
groups:
  - name: api
    policy: round_robin
    targets:
      - host: ""
        port: 70000
rules:
  - prefix: /api
    group: api
`
	_, err := Parse([]byte(doc))
	if !errors.Is(err, ErrMalformedEndpoint) {
		t.Fatalf("got %v, want ErrMalformedEndpoint", err)
	}
}

func TestParseRejectsBadRewrite(t *testing.T) {
	doc := `
listener_port: 8080
groups:
  - name: api
    policy: round_robin
    targets:
      - host: 127.0.0.1
        port: 9001
rules:
  - prefix: /api
    rewrite: /not-a-prefix
    group: api
`
	_, err := Parse([]byte(doc))
	if !errors.Is(err, ErrBadRewrite) {
		t.Fatalf("got %v, want ErrBadRewrite", err)
	}
}

func TestParseReportsMultipleErrorsJoined(t *testing.T) {
	doc := `
listener_port: 8080
groups:
  - name: ""
    policy: round_robin
    targets: []
rules:
  - prefix: ""
    group: nope
`
	_, err := Parse([]byte(doc))
	if err == nil {
		t.Fatal("expected a joined validation error")
	}
	if !errors.Is(err, ErrEmptyGroupName) {
		t.Error("expected the joined error to include ErrEmptyGroupName")
	}
	if !errors.Is(err, ErrEmptyPrefix) {
		t.Error("expected the joined error to include ErrEmptyPrefix")
	}
}
