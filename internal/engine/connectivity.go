package engine

import (
	"sync"
	"time"
)

// Source is the abstract connectivity observer the engine subscribes
// to. The host environment adapts its platform signals (network change
// callbacks, heartbeat probes) to this interface, keeping the engine
// platform-agnostic.
//
// Online reports the current state; Changes delivers each transition as
// the new state. A nil Source means the engine assumes it is always
// online.
type Source interface {
	Online() bool
	Changes() <-chan bool
}

// flapDetector counts connectivity transitions inside a sliding window
// so the engine can stretch its debounce delay when the link is
// oscillating. A sync storm from a flapping link costs more than a few
// extra seconds of waiting.
type flapDetector struct {
	mu        sync.Mutex
	window    time.Duration
	threshold int
	times     []time.Time
}

func newFlapDetector(window time.Duration, threshold int) *flapDetector {
	return &flapDetector{
		window:    window,
		threshold: threshold,
	}
}

// Record notes a transition at now and prunes entries older than the
// window.
func (f *flapDetector) Record(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.times = append(f.times, now)
	f.prune(now)
}

// Flapping reports whether the transition count within the window has
// reached the threshold.
func (f *flapDetector) Flapping(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prune(now)
	return len(f.times) >= f.threshold
}

func (f *flapDetector) prune(now time.Time) {
	cutoff := now.Add(-f.window)
	keep := f.times[:0]
	for _, t := range f.times {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	f.times = keep
}

// Debounce returns the anti-flap delay to wait after a
// connectivity-restored signal: the base delay, doubled while the link
// is flapping.
func (f *flapDetector) Debounce(base time.Duration, now time.Time) time.Duration {
	if f.Flapping(now) {
		return base * 2
	}
	return base
}
