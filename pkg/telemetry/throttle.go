package telemetry

// Throttle bounds how often a value is forwarded, counted in ticks rather
// than wall time so the send rate is independent of sampling cost.
type Throttle struct {
	lastSent int
	sent     bool
}

// NewThrottle returns a throttle that will emit on its first call.
func NewThrottle() *Throttle {
	return &Throttle{}
}

// MaybeEmit returns (value, true) when at least every ticks have passed
// since the last emission, recording tick as the new send point.
func (t *Throttle) MaybeEmit(value float64, tick, every int) (float64, bool) {
	if t.sent && tick-t.lastSent < every {
		return 0, false
	}
	t.lastSent = tick
	t.sent = true
	return value, true
}

// LastSent returns the tick of the last emission and whether one happened.
func (t *Throttle) LastSent() (int, bool) {
	return t.lastSent, t.sent
}

// Reset forgets the last emission.
func (t *Throttle) Reset() {
	t.lastSent, t.sent = 0, false
}
