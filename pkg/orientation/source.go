package orientation

import (
	"errors"
	"math"
	"sync"
	"time"
)

// ErrUnavailable is returned by a Source that has no reading yet.
var ErrUnavailable = errors.New("orientation: source unavailable")

// Source provides the current head orientation.
type Source interface {
	Orientation() (Quaternion, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (Quaternion, error)

// Orientation implements Source.
func (f SourceFunc) Orientation() (Quaternion, error) { return f() }

// Static is a Source that always reports the same rotation. A zero-value
// Static is unavailable until Set is called.
type Static struct {
	mu  sync.RWMutex
	q   Quaternion
	set bool
}

// NewStatic returns a Static source already holding q.
func NewStatic(q Quaternion) *Static {
	return &Static{q: q, set: true}
}

// Set updates the reported rotation.
func (s *Static) Set(q Quaternion) {
	s.mu.Lock()
	s.q, s.set = q, true
	s.mu.Unlock()
}

// Orientation implements Source.
func (s *Static) Orientation() (Quaternion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return Quaternion{}, ErrUnavailable
	}
	return s.q, nil
}

// Nodding simulates a head that slowly dips down and back up around the
// pitch axis. It is used by the lensmon demo when no sensor is attached.
type Nodding struct {
	Start     time.Time
	Period    time.Duration // full cycle
	Amplitude float64       // degrees either side of Center
	Center    float64       // degrees
	Now       func() time.Time
}

// NewNodding creates a simulation with the given cycle parameters.
func NewNodding(period time.Duration, center, amplitude float64) *Nodding {
	return &Nodding{Start: time.Now(), Period: period, Center: center, Amplitude: amplitude, Now: time.Now}
}

// PitchAt returns the simulated pitch in degrees at t.
func (n *Nodding) PitchAt(t time.Time) float64 {
	if n.Period <= 0 {
		return n.Center
	}
	phase := t.Sub(n.Start).Seconds() / n.Period.Seconds()
	return n.Center + n.Amplitude*math.Sin(2*math.Pi*phase)
}

// Orientation implements Source.
func (n *Nodding) Orientation() (Quaternion, error) {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	return FromAxisAngle(1, 0, 0, n.PitchAt(now())), nil
}
