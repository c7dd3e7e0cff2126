package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFake returns a Fake clock frozen at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

func (f *Fake) Ticker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTicker{
		parent:   f,
		interval: d,
		next:     f.now.Add(d),
		c:        make(chan time.Time, 1),
	}
	f.tickers = append(f.tickers, t)

	return t
}

// Advance moves the clock forward and fires any tickers whose interval
// elapsed. Each ticker fires at most once per Advance call, matching how a
// slow consumer observes a coalesced time.Ticker.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)

	for _, t := range f.tickers {
		if t.stopped || f.now.Before(t.next) {
			continue
		}

		t.next = f.now.Add(t.interval)

		select {
		case t.c <- f.now:
		default:
		}
	}
}

type fakeTicker struct {
	parent   *Fake
	interval time.Duration
	next     time.Time
	c        chan time.Time
	stopped  bool
}

func (t *fakeTicker) Chan() <-chan time.Time {
	return t.c
}

func (t *fakeTicker) Stop() {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()

	t.stopped = true
}
