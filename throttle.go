package main

import "time"

// ThrottleGate bounds the rate of broadcast-triggering position updates
// per connection. Rejected updates are dropped, never queued or merged;
// only the next update that clears the interval is applied. All access
// is serialized by the engine, so no locking here.
type ThrottleGate struct {
	interval time.Duration
	last     map[string]time.Time
}

// NewThrottleGate creates a gate with the given minimum inter-update
// interval.
func NewThrottleGate(interval time.Duration) *ThrottleGate {
	return &ThrottleGate{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// TryAdmit reports whether an update from connID at now clears the
// interval since the last admitted update, recording now when it does.
// A connection with no prior record is always admitted.
func (t *ThrottleGate) TryAdmit(connID string, now time.Time) bool {
	if last, ok := t.last[connID]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[connID] = now
	return true
}

// Forget clears throttle bookkeeping for a connection, keeping the
// record map bounded by the set of live connections.
func (t *ThrottleGate) Forget(connID string) {
	delete(t.last, connID)
}

// SetInterval changes the minimum inter-update interval
func (t *ThrottleGate) SetInterval(d time.Duration) {
	t.interval = d
}

// Interval returns the current minimum inter-update interval
func (t *ThrottleGate) Interval() time.Duration {
	return t.interval
}

// Tracked returns the number of connections with throttle records
func (t *ThrottleGate) Tracked() int {
	return len(t.last)
}
