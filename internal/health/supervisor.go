// Package health implements the per-group background probe loop that
// gates which targets a selection policy is allowed to pick.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ProbeTimeout bounds every individual health probe regardless of the
// configured check interval.
const ProbeTimeout = 5 * time.Second

// Endpoint is the subset of target identity the supervisor needs to
// probe a backend. It intentionally does not import the lb package —
// config.Build adapts each resolved target into an Endpoint when it
// constructs the group.
type Endpoint struct {
	ID   string
	Host string
	Port int
}

// Config holds the per-group health-check parameters. Zero values are
// replaced by DefaultConfig's values by the config loader before a
// Supervisor is constructed.
type Config struct {
	Path             string
	Interval         time.Duration
	SucceedThreshold int
	FailureThreshold int
}

// DefaultConfig returns the default health-check parameters.
func DefaultConfig() Config {
	return Config{
		Path:             "/health",
		Interval:         30 * time.Second,
		SucceedThreshold: 2,
		FailureThreshold: 2,
	}
}

type state struct {
	mu      sync.Mutex
	healthy bool
	succ    int
	fail    int
}

func (s *state) isHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

// onResult applies the consecutive-threshold state machine and returns
// (oldHealthy, newHealthy, succ, fail) for logging at the transition.
func (s *state) onResult(succeedThreshold, failureThreshold int, success bool) (old, cur bool, succ, fail int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old = s.healthy
	if success {
		s.succ++
		s.fail = 0
		if !s.healthy && s.succ >= succeedThreshold {
			s.healthy = true
		}
	} else {
		s.fail++
		s.succ = 0
		if s.healthy && s.fail >= failureThreshold {
			s.healthy = false
		}
	}
	cur = s.healthy
	return old, cur, s.succ, s.fail
}

// Supervisor runs one background probe loop for a single target
// group. It owns every target's healthy/succ/fail state exclusively;
// readers only ever see the result of IsHealthy.
type Supervisor struct {
	group  string
	cfg    Config
	client *http.Client
	clock  clockwork.Clock
	logger *zap.Logger

	mu      sync.RWMutex
	targets map[string]*state
	order   []Endpoint

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option customizes Supervisor construction, primarily for tests that
// need an injectable clock or HTTP client.
type Option func(*Supervisor)

// WithClock overrides the wall clock used for ticking; defaults to
// clockwork.NewRealClock().
func WithClock(c clockwork.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithHTTPClient overrides the HTTP client used for probes.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Supervisor) { s.client = c }
}

// WithLogger attaches a logger; defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// NewSupervisor builds a Supervisor for the given group's endpoints.
// Every target starts unhealthy (healthy=false) unless cfg.SucceedThreshold
// is 1, in which case the first successful probe flips it immediately —
// that's the ordinary onResult transition, no special-casing needed here.
func NewSupervisor(group string, endpoints []Endpoint, cfg Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		group:   group,
		cfg:     cfg,
		client:  &http.Client{Timeout: ProbeTimeout},
		clock:   clockwork.NewRealClock(),
		logger:  zap.NewNop(),
		targets: make(map[string]*state, len(endpoints)),
		order:   endpoints,
		stopCh:  make(chan struct{}),
	}
	for _, ep := range endpoints {
		s.targets[ep.ID] = &state{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsHealthy reports whether the named target is currently eligible.
// A single boolean read needs no external locking beyond state's own
// mutex.
func (s *Supervisor) IsHealthy(id string) bool {
	s.mu.RLock()
	st, ok := s.targets[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return st.isHealthy()
}

// Start launches the background probe loop. It ticks immediately, then
// every cfg.Interval, until Stop is called.
func (s *Supervisor) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Supervisor) run(ctx context.Context) {
	defer s.wg.Done()
	s.probeAll(ctx)

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.probeAll(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// probeAll fans a probe out to every target concurrently, each in its
// own goroutine, and returns once all of them have finished. The loop
// takes no further tick while probeAll runs, so a slow probe of one
// target can hold back the next tick for every target by up to
// ProbeTimeout.
func (s *Supervisor) probeAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ep := range s.order {
		ep := ep
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.probeOne(ctx, ep)
		}()
	}
	wg.Wait()
}

func (s *Supervisor) probeOne(ctx context.Context, ep Endpoint) {
	ok := s.probe(ctx, ep)

	s.mu.RLock()
	st := s.targets[ep.ID]
	s.mu.RUnlock()
	if st == nil {
		return
	}

	old, cur, succ, fail := st.onResult(s.cfg.SucceedThreshold, s.cfg.FailureThreshold, ok)
	if old == cur {
		return
	}
	if cur {
		s.logger.Info("target became healthy",
			zap.String("group", s.group), zap.String("target", ep.ID),
			zap.Int("consecutive_successes", succ))
	} else {
		s.logger.Info("target became unhealthy",
			zap.String("group", s.group), zap.String("target", ep.ID),
			zap.Int("consecutive_failures", fail))
	}
}

// probe issues a plain GET with Connection: close, succeeding iff the
// response status is 200 within ProbeTimeout.
func (s *Supervisor) probe(ctx context.Context, ep Endpoint) bool {
	probeCtx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s:%d%s", ep.Host, ep.Port, s.cfg.Path)
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Close = true

	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Stop signals the background loop to exit and waits (bounded) for
// in-flight probes to finish.
func (s *Supervisor) Stop() {
	close(s.stopCh)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * ProbeTimeout):
	}
}
