package lb

import "testing"

func TestLRTPicksColdTargetOverLoadedOne(t *testing.T) {
	targets := newTargets("a", "b")
	l := NewLRT()

	// a has an established TTFB sample and an in-flight request; b has
	// never been sampled, so its metric is 0 and it must win.
	targets[0].Dispatch()
	targets[0].Complete(true, 100)
	targets[0].Dispatch()

	p, err := l.Pick(PickContext{}, targets)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if p.ID != "b" {
		t.Fatalf("got %s, want b (cold target should win over a loaded, sampled one)", p.ID)
	}
}

func TestLRTPicksLowerMetric(t *testing.T) {
	targets := newTargets("a", "b")
	l := NewLRT()

	for _, tg := range targets {
		tg.Dispatch()
		tg.Complete(true, 0) // seed a sample so both have non-zero metric once loaded
	}
	targets[0].Dispatch()
	targets[0].Complete(true, 200) // a: metric settles higher
	targets[1].Dispatch()
	targets[1].Complete(true, 10) // b: metric settles lower

	targets[0].Dispatch() // a now has 1 active conn
	targets[1].Dispatch() // b now has 1 active conn

	p, err := l.Pick(PickContext{}, targets)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if p.ID != "b" {
		t.Fatalf("got %s, want b (lower active_conns*ttfb metric)", p.ID)
	}
}

func TestLRTOnCompleteFailureSkipsSample(t *testing.T) {
	tg := newTargets("a")[0]
	l := NewLRT()

	l.OnDispatch(tg)
	l.OnComplete(tg, false, 9999)

	if tg.ActiveConns() != 0 {
		t.Fatalf("active conns = %d, want 0 (release must happen even on failure)", tg.ActiveConns())
	}
	if tg.AvgTTFBMs() != 0 {
		t.Fatalf("avg ttfb = %v, want 0 (a failed request must not contribute a TTFB sample)", tg.AvgTTFBMs())
	}
}

func TestLRTEmptyEligible(t *testing.T) {
	l := NewLRT()
	if _, err := l.Pick(PickContext{}, nil); err != ErrNoHealthyTargets {
		t.Fatalf("got %v, want ErrNoHealthyTargets", err)
	}
}

func TestLRTTiesBreakOnDeclarationOrder(t *testing.T) {
	targets := newTargets("a", "b")
	l := NewLRT()
	// Both targets are cold (metric 0): the first in the eligible
	// slice must win.
	p, err := l.Pick(PickContext{}, targets)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if p.ID != "a" {
		t.Fatalf("got %s, want a on a tie", p.ID)
	}
}
