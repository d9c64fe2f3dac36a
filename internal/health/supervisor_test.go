package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestServer(status func() int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status())
	}))
}

func endpointFor(srv *httptest.Server) Endpoint {
	u, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	host := u.URL.Hostname()
	port := 0
	if p := u.URL.Port(); p != "" {
		// httptest always assigns a numeric port; parse is trivial enough
		// not to warrant importing strconv twice for one test helper.
		for _, c := range p {
			port = port*10 + int(c-'0')
		}
	}
	return Endpoint{ID: "t1", Host: host, Port: port}
}

func TestSupervisorStartsUnhealthyUntilSucceedThreshold(t *testing.T) {
	var code int32 = http.StatusOK
	srv := newTestServer(func() int { return int(atomic.LoadInt32(&code)) })
	defer srv.Close()

	ep := endpointFor(srv)
	clock := clockwork.NewFakeClock()
	cfg := Config{Path: "/", Interval: time.Minute, SucceedThreshold: 2, FailureThreshold: 2}
	s := NewSupervisor("g", []Endpoint{ep}, cfg, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	if s.IsHealthy(ep.ID) {
		t.Fatal("target must start unhealthy before any probe completes")
	}

	time.Sleep(50 * time.Millisecond) // let the immediate first probe land
	if s.IsHealthy(ep.ID) {
		t.Fatal("one success with succeed_threshold=2 must not yet be healthy")
	}

	clock.Advance(time.Minute)
	waitUntil(t, func() bool { return s.IsHealthy(ep.ID) }, true)
}

func TestSupervisorFlipsUnhealthyAfterFailureThreshold(t *testing.T) {
	var code int32 = http.StatusOK
	srv := newTestServer(func() int { return int(atomic.LoadInt32(&code)) })
	defer srv.Close()

	ep := endpointFor(srv)
	clock := clockwork.NewFakeClock()
	cfg := Config{Path: "/", Interval: time.Minute, SucceedThreshold: 1, FailureThreshold: 2}
	s := NewSupervisor("g", []Endpoint{ep}, cfg, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	waitUntil(t, func() bool { return s.IsHealthy(ep.ID) }, true)

	atomic.StoreInt32(&code, http.StatusInternalServerError)
	clock.Advance(time.Minute)
	time.Sleep(50 * time.Millisecond) // let the failing probe land before asserting it didn't flip yet
	if !s.IsHealthy(ep.ID) {
		t.Fatal("a single failure must not flip healthy->unhealthy before failure_threshold is reached")
	}

	clock.Advance(time.Minute)
	waitUntil(t, func() bool { return s.IsHealthy(ep.ID) }, false)
}

func TestSupervisorUnknownTargetIsUnhealthy(t *testing.T) {
	s := NewSupervisor("g", nil, DefaultConfig())
	if s.IsHealthy("nonexistent") {
		t.Fatal("an unknown target id must report unhealthy, never panic")
	}
}

func TestSupervisorProbeFailsOnConnectionRefused(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ep := Endpoint{ID: "dead", Host: "127.0.0.1", Port: 1} // nothing listens on port 1
	cfg := Config{Path: "/", Interval: time.Minute, SucceedThreshold: 1, FailureThreshold: 1}
	s := NewSupervisor("g", []Endpoint{ep}, cfg, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if s.probe(ctx, ep) {
		t.Fatal("a probe against a closed port must fail")
	}

	s.Start(ctx)
	defer s.Stop()

	waitUntil(t, func() bool { return s.IsHealthy(ep.ID) }, false)
}

// waitUntil polls a predicate until it equals want or a short deadline
// passes; probes complete asynchronously on their own goroutines even
// after a fake-clock tick fires, so assertions need a brief real-time
// poll rather than a synchronous check.
func waitUntil(t *testing.T, predicate func() bool, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if predicate() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := predicate(); got != want {
		t.Fatalf("condition settled on %v, want %v", got, want)
	}
}
