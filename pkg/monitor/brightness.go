package monitor

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/teslashibe/go-lensmon/pkg/debug"
	"github.com/teslashibe/go-lensmon/pkg/sampling"
)

// MetricBrightness is the telemetry key for brightness readings.
const MetricBrightness = "brightness"

type brightnessSignal struct {
	field   sampling.Field
	sampler *sampling.FieldSampler
}

// NewBrightness builds a monitor that watches the mean luminance of field.
// rng seeds the foveated sample positions and may be nil.
func NewBrightness(cfg Config, field sampling.Field, rng *rand.Rand, opts ...Option) (*Monitor, error) {
	if field == nil {
		return nil, ErrNoSource
	}
	if cfg.MaxSamples < 1 {
		return nil, fmt.Errorf("%w: max_samples must be >= 1", ErrInvalidConfig)
	}
	sig := &brightnessSignal{
		field:   field,
		sampler: sampling.NewFieldSampler(cfg.MaxSamples, cfg.FoveaSize, cfg.SmoothingFactor, rng),
	}
	return newMonitor("brightness", cfg, sig, field, opts...)
}

func (b *brightnessSignal) Sample() (float64, error) {
	if r, ok := b.field.(sampling.Refresher); ok {
		if err := r.Refresh(); err != nil {
			return b.sampler.Value(), fmt.Errorf("%w: %w", sampling.ErrFieldNotReady, err)
		}
	}
	v, err := b.sampler.Update(b.field)
	valid, failed := b.sampler.LastCounts()
	debug.SampleLog("🔦 brightness samples: %d ok, %d failed, smoothed %.3f\n", valid, failed, v)
	return v, err
}

// Unavailable separates a missing frame from a frame whose individual
// reads all failed; the latter holds the last value instead.
func (b *brightnessSignal) Unavailable(err error) bool {
	return errors.Is(err, sampling.ErrFieldNotReady) && !errors.Is(err, sampling.ErrNoSamples)
}

func (b *brightnessSignal) Value() float64    { return b.sampler.Value() }
func (b *brightnessSignal) Raw() float64      { return b.sampler.Raw() }
func (b *brightnessSignal) Initialized() bool { return b.sampler.Initialized() }
func (b *brightnessSignal) Metric() string    { return MetricBrightness }

func (b *brightnessSignal) Status(value float64, active bool) string {
	if active {
		return fmt.Sprintf("Brightness: %.1f%%\n⚠️ Too dark: turn on a light", value*100)
	}
	return fmt.Sprintf("Brightness: %.1f%%", value*100)
}

func (b *brightnessSignal) Context(value float64, active bool, exceed float64) map[string]any {
	valid, failed := b.sampler.LastCounts()
	return map[string]any{
		"category":         sampling.BrightnessCategory(value),
		"brightness_alert": active,
		"samples_valid":    valid,
		"samples_failed":   failed,
	}
}
