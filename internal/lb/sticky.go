package lb

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type stickyEntry struct {
	targetID string
	expiry   time.Time
}

// Sticky pins a client fingerprint to the target it was last routed
// to, for sessionTTL, falling back to round-robin over the eligible
// set on a cold or expired lookup. The session map lives only in this
// process's memory and does not survive a restart.
type Sticky struct {
	basePolicy
	ttl      time.Duration
	clock    clockwork.Clock
	fallback *RoundRobin

	mu       sync.Mutex
	sessions map[string]stickyEntry
}

// NewSticky builds a Sticky policy with the given session TTL. clock
// defaults to clockwork.NewRealClock() when nil, letting tests inject
// a fake clock to exercise expiry deterministically.
func NewSticky(ttl time.Duration, clock clockwork.Clock) *Sticky {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sticky{
		ttl:      ttl,
		clock:    clock,
		fallback: NewRoundRobin(),
		sessions: make(map[string]stickyEntry),
	}
}

// Pick looks up ctx.ClientFingerprint's pinned target; if present,
// unexpired, and still in eligible, it refreshes the expiry and
// returns it. Otherwise it picks a fresh target via round-robin over
// eligible and pins the session.
func (s *Sticky) Pick(ctx PickContext, eligible []*Target) (*Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	if entry, ok := s.sessions[ctx.ClientFingerprint]; ok {
		if now.Before(entry.expiry) {
			for _, t := range eligible {
				if t.ID == entry.targetID {
					entry.expiry = now.Add(s.ttl)
					s.sessions[ctx.ClientFingerprint] = entry
					return t, nil
				}
			}
		}
		// Expired, or its target is no longer eligible: evict lazily.
		delete(s.sessions, ctx.ClientFingerprint)
	}

	t, err := s.fallback.Pick(ctx, eligible)
	if err != nil {
		return nil, err
	}

	s.sessions[ctx.ClientFingerprint] = stickyEntry{targetID: t.ID, expiry: now.Add(s.ttl)}
	return t, nil
}
