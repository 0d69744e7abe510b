package monitor

import (
	"fmt"

	"github.com/teslashibe/go-lensmon/pkg/orientation"
	"github.com/teslashibe/go-lensmon/pkg/sampling"
)

// MetricPitch is the telemetry key for posture readings.
const MetricPitch = "pitch"

type postureSignal struct {
	source    orientation.Source
	mode      orientation.Mode
	threshold float64
	smoother  *sampling.Smoother
}

// NewPosture builds a monitor that watches head pitch from src.
func NewPosture(cfg Config, src orientation.Source, opts ...Option) (*Monitor, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	sig := &postureSignal{
		source:    src,
		mode:      cfg.PitchMode,
		threshold: cfg.Threshold,
		smoother:  sampling.NewSmoother(cfg.SmoothingFactor),
	}
	return newMonitor("posture", cfg, sig, src, opts...)
}

func (p *postureSignal) Sample() (float64, error) {
	q, err := p.source.Orientation()
	if err != nil {
		return p.smoother.Value(), err
	}
	pitch := orientation.Pitch(q, p.mode)
	return p.smoother.Update(pitch), nil
}

func (p *postureSignal) Unavailable(err error) bool {
	// any orientation error means there is no reading this frame
	return err != nil
}

func (p *postureSignal) Value() float64    { return p.smoother.Value() }
func (p *postureSignal) Raw() float64      { return p.smoother.Raw() }
func (p *postureSignal) Initialized() bool { return p.smoother.Initialized() }
func (p *postureSignal) Metric() string    { return MetricPitch }

func (p *postureSignal) Status(value float64, active bool) string {
	if active {
		return fmt.Sprintf("Pitch: %.1f°\n⚠️ Posture alert: lift your head", value)
	}
	return fmt.Sprintf("Pitch: %.1f°", value)
}

func (p *postureSignal) Context(value float64, active bool, exceed float64) map[string]any {
	return map[string]any{
		"posture_alert":  active,
		"exceed_seconds": exceed,
		"threshold":      p.threshold,
	}
}
