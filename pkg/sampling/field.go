package sampling

import "errors"

var (
	// ErrFieldNotReady is returned by a Field that has no frame yet.
	ErrFieldNotReady = errors.New("sampling: field not ready")

	// ErrOutOfBounds is returned when a sample coordinate is outside [0,1].
	ErrOutOfBounds = errors.New("sampling: coordinate out of bounds")

	// ErrNoSamples is returned when every sample in a frame failed.
	ErrNoSamples = errors.New("sampling: no valid samples")

	// ErrFrameDropped is returned by a Refresher that missed one frame but
	// is still open.
	ErrFrameDropped = errors.New("sampling: frame dropped")
)

// WCAG relative luminance coefficients.
const (
	lumaR = 0.2126
	lumaG = 0.7152
	lumaB = 0.0722
)

// RGB is a colour with channels in [0,1].
type RGB struct {
	R, G, B float64
}

// Luminance returns the WCAG relative luminance of the colour.
func (c RGB) Luminance() float64 {
	return Luminance(c.R, c.G, c.B)
}

// Luminance computes 0.2126·R + 0.7152·G + 0.0722·B.
func Luminance(r, g, b float64) float64 {
	return lumaR*r + lumaG*g + lumaB*b
}

// Field is a 2-D RGB field that can be point-sampled at normalized
// coordinates. Implementations return ErrFieldNotReady before their first
// frame.
type Field interface {
	Width() int
	Height() int
	Sample(u, v float64) (RGB, error)
}

// BrightnessCategory buckets a luminance into "dark", "medium" or "bright".
func BrightnessCategory(l float64) string {
	switch {
	case l < 0.33:
		return "dark"
	case l < 0.67:
		return "medium"
	default:
		return "bright"
	}
}

// Refresher is implemented by live fields that must advance to the next
// frame before they are sampled.
type Refresher interface {
	Refresh() error
}
