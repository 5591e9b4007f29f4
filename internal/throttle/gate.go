// Package throttle limits how often the detector may run.
package throttle

import "time"

// Gate decides whether a frame may invoke the detector, based on the time
// elapsed since the last accepted invocation.
//
// Gate is not safe for concurrent use; the inference coordinator serializes
// every call under its own lock.
type Gate struct {
	interval     time.Duration
	lastAccepted time.Time
	accepted     bool
}

// Mark is a snapshot of the gate's acceptance state.
type Mark struct {
	lastAccepted time.Time
	accepted     bool
}

// NewGate creates a Gate that allows at most one acceptance per interval.
// Negative intervals are treated as zero.
func NewGate(interval time.Duration) *Gate {
	g := &Gate{}
	g.SetInterval(interval)
	return g
}

// ShouldSkip reports whether a frame at now falls inside the current window.
// When it does not, now is recorded as the last accepted time. The skip path
// never records anything, so the gate reopens once the interval has elapsed.
func (g *Gate) ShouldSkip(now time.Time) bool {
	if g.accepted && g.interval > 0 && now.Sub(g.lastAccepted) < g.interval {
		return true
	}
	g.lastAccepted = now
	g.accepted = true
	return false
}

// SetInterval changes the window length. It applies from the next check on.
func (g *Gate) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	g.interval = d
}

// Interval returns the configured window length.
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// Mark returns the current acceptance state.
func (g *Gate) Mark() Mark {
	return Mark{lastAccepted: g.lastAccepted, accepted: g.accepted}
}

// Restore rolls the acceptance state back to m. Used when an accepted
// invocation fails and must not count against the window.
func (g *Gate) Restore(m Mark) {
	g.lastAccepted = m.lastAccepted
	g.accepted = m.accepted
}
