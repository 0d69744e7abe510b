package sampling

import "math"

// Smoother is an exponential moving average over a scalar signal.
// The first valid sample seeds the average directly.
type Smoother struct {
	factor      float64 // weight on the new sample, 0-1
	raw         float64
	smoothed    float64
	initialized bool
}

// NewSmoother creates a smoother with the given factor, clamped to [0,1].
// A factor of 1 tracks the raw signal exactly; 0 holds the seed forever.
func NewSmoother(factor float64) *Smoother {
	return &Smoother{factor: clamp(factor, 0, 1)}
}

// Update feeds a raw sample and returns the smoothed value.
// NaN and infinite samples are ignored.
func (s *Smoother) Update(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return s.smoothed
	}
	s.raw = raw
	if !s.initialized {
		s.smoothed = raw
		s.initialized = true
		return s.smoothed
	}
	s.smoothed = s.smoothed*(1-s.factor) + raw*s.factor
	return s.smoothed
}

// Value returns the current smoothed value.
func (s *Smoother) Value() float64 {
	return s.smoothed
}

// Raw returns the last accepted raw sample.
func (s *Smoother) Raw() float64 {
	return s.raw
}

// Initialized reports whether a sample has seeded the average.
func (s *Smoother) Initialized() bool {
	return s.initialized
}

// Factor returns the smoothing factor.
func (s *Smoother) Factor() float64 {
	return s.factor
}

// Reset clears the smoother so the next sample seeds it again.
func (s *Smoother) Reset() {
	s.raw, s.smoothed, s.initialized = 0, 0, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
