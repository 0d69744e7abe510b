package sampling

import (
	"math"
	"math/rand/v2"
)

const (
	// FoveaFraction is the share of points drawn inside the fovea.
	FoveaFraction = 0.7

	// peripheryAttempts bounds rejection sampling for periphery points.
	peripheryAttempts = 20
)

// Point is a normalized field coordinate.
type Point struct {
	U, V float64
}

// FoveatedSet is a fixed set of sample points concentrated in a central
// ellipse. Fovea points come first, then periphery points.
type FoveatedSet struct {
	Points     []Point
	FoveaCount int
	Width      int
	Height     int
	FoveaSize  float64
}

// Periphery returns the points drawn outside the fovea step.
func (s *FoveatedSet) Periphery() []Point {
	return s.Points[s.FoveaCount:]
}

// Fovea returns the points drawn inside the ellipse.
func (s *FoveatedSet) Fovea() []Point {
	return s.Points[:s.FoveaCount]
}

// Matches reports whether the set was built for the given dimensions.
func (s *FoveatedSet) Matches(width, height int) bool {
	return s != nil && s.Width == width && s.Height == height
}

// InFovea reports whether p falls inside the fovea ellipse of the given size.
// The ellipse has radii foveaSize·width/2 and foveaSize·height/2 in pixels,
// which is foveaSize/2 on both axes once normalized.
func InFovea(p Point, foveaSize float64) bool {
	r := foveaSize / 2
	if r <= 0 {
		return false
	}
	du := (p.U - 0.5) / r
	dv := (p.V - 0.5) / r
	return du*du+dv*dv <= 1
}

// NewFoveatedSet draws maxSamples points for a width×height field.
// A nil rng uses the global source.
func NewFoveatedSet(width, height, maxSamples int, foveaSize float64, rng *rand.Rand) *FoveatedSet {
	if maxSamples < 0 {
		maxSamples = 0
	}
	foveaSize = clamp(foveaSize, 0, 1)
	next := rand.Float64
	if rng != nil {
		next = rng.Float64
	}

	foveaCount := int(math.Round(FoveaFraction * float64(maxSamples)))
	set := &FoveatedSet{
		Points:     make([]Point, 0, maxSamples),
		FoveaCount: foveaCount,
		Width:      width,
		Height:     height,
		FoveaSize:  foveaSize,
	}

	r := foveaSize / 2
	for i := 0; i < foveaCount; i++ {
		// sqrt keeps the density uniform over the ellipse area
		rho := math.Sqrt(next())
		theta := 2 * math.Pi * next()
		set.Points = append(set.Points, Point{
			U: clamp(0.5+r*rho*math.Cos(theta), 0, 1),
			V: clamp(0.5+r*rho*math.Sin(theta), 0, 1),
		})
	}

	for i := foveaCount; i < maxSamples; i++ {
		var p Point
		for attempt := 0; attempt < peripheryAttempts; attempt++ {
			p = Point{U: next(), V: next()}
			if !InFovea(p, foveaSize) {
				break
			}
		}
		set.Points = append(set.Points, p)
	}

	return set
}
