package sampling

import (
	"fmt"
	"math/rand/v2"
)

// FieldSampler averages luminance over a foveated point set and smooths
// the per-frame mean.
type FieldSampler struct {
	maxSamples int
	foveaSize  float64
	rng        *rand.Rand

	set      *FoveatedSet
	smoother *Smoother

	lastValid  int
	lastFailed int
}

// NewFieldSampler creates a sampler. rng may be nil.
func NewFieldSampler(maxSamples int, foveaSize, smoothing float64, rng *rand.Rand) *FieldSampler {
	return &FieldSampler{
		maxSamples: maxSamples,
		foveaSize:  foveaSize,
		rng:        rng,
		smoother:   NewSmoother(smoothing),
	}
}

// SampleSet returns the cached point set, generating it for the given
// dimensions if it is missing or stale.
func (f *FieldSampler) SampleSet(width, height int) *FoveatedSet {
	if !f.set.Matches(width, height) {
		f.set = NewFoveatedSet(width, height, f.maxSamples, f.foveaSize, f.rng)
	}
	return f.set
}

// FrameLuminance returns the mean luminance of the field over the sample
// set, along with how many samples succeeded.
func (f *FieldSampler) FrameLuminance(field Field) (float64, int, error) {
	if field == nil {
		return 0, 0, ErrFieldNotReady
	}
	w, h := field.Width(), field.Height()
	if w <= 0 || h <= 0 {
		return 0, 0, ErrFieldNotReady
	}

	set := f.SampleSet(w, h)
	var sum float64
	valid := 0
	for _, p := range set.Points {
		c, err := field.Sample(p.U, p.V)
		if err != nil {
			continue
		}
		sum += c.Luminance()
		valid++
	}

	f.lastValid = valid
	f.lastFailed = len(set.Points) - valid
	if valid == 0 {
		return 0, 0, fmt.Errorf("%w (%d attempted)", ErrNoSamples, len(set.Points))
	}
	return sum / float64(valid), valid, nil
}

// Update samples the field and returns the smoothed luminance. When no
// sample could be read the previous smoothed value is returned unchanged
// together with the error.
func (f *FieldSampler) Update(field Field) (float64, error) {
	mean, _, err := f.FrameLuminance(field)
	if err != nil {
		return f.smoother.Value(), err
	}
	return f.smoother.Update(mean), nil
}

// Value returns the current smoothed luminance.
func (f *FieldSampler) Value() float64 {
	return f.smoother.Value()
}

// Raw returns the last per-frame mean that reached the smoother.
func (f *FieldSampler) Raw() float64 {
	return f.smoother.Raw()
}

// Initialized reports whether any frame has produced a reading.
func (f *FieldSampler) Initialized() bool {
	return f.smoother.Initialized()
}

// LastCounts returns the valid and failed sample counts of the last frame.
func (f *FieldSampler) LastCounts() (valid, failed int) {
	return f.lastValid, f.lastFailed
}
