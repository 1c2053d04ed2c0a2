package action

import "time"

// ActionClock records when the last action was dispatched.
// *store.Store satisfies it.
type ActionClock interface {
	MarkActionTime()
	TimeSinceLastAction() time.Duration
}

// Throttle enforces a minimum time between dispatched actions. It never
// sleeps: Allow is a plain check.
type Throttle struct {
	clock    ActionClock
	cooldown time.Duration
}

// NewThrottle creates a throttle on top of clock.
func NewThrottle(clock ActionClock, cooldown time.Duration) *Throttle {
	return &Throttle{clock: clock, cooldown: cooldown}
}

// Allow reports whether more than the cooldown has passed since the last
// successful dispatch.
func (t *Throttle) Allow() bool {
	return t.clock.TimeSinceLastAction() > t.cooldown
}

// Stamp records a successful dispatch.
func (t *Throttle) Stamp() {
	t.clock.MarkActionTime()
}

// Cooldown returns the configured cooldown.
func (t *Throttle) Cooldown() time.Duration {
	return t.cooldown
}
