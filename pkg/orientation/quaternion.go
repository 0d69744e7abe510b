// Package orientation extracts head pitch from a rotation quaternion.
package orientation

import (
	"fmt"
	"math"
)

// Quaternion is a rotation with scalar part W.
type Quaternion struct {
	W, X, Y, Z float64
}

// Identity is the no-rotation quaternion.
var Identity = Quaternion{W: 1}

// FromAxisAngle builds a unit quaternion rotating by deg degrees about
// the (x,y,z) axis.
func FromAxisAngle(x, y, z, deg float64) Quaternion {
	n := math.Sqrt(x*x + y*y + z*z)
	if n == 0 {
		return Identity
	}
	half := deg * math.Pi / 360
	s := math.Sin(half) / n
	return Quaternion{W: math.Cos(half), X: x * s, Y: y * s, Z: z * s}
}

// Norm returns the quaternion magnitude.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Normalize returns q scaled to unit length. A zero quaternion becomes
// Identity.
func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n == 0 || math.IsNaN(n) {
		return Identity
	}
	return Quaternion{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// Mode selects the pitch extraction formula.
type Mode int

const (
	// ModeATan2 is stable across the full range and is the default.
	ModeATan2 Mode = iota
	// ModeASin matches asin(2(wx − yz)); it saturates at ±90° and loses
	// precision near gimbal lock.
	ModeASin
)

// String returns "atan2" or "asin".
func (m Mode) String() string {
	if m == ModeASin {
		return "asin"
	}
	return "atan2"
}

// ParseMode accepts "atan2" and "asin".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "atan2":
		return ModeATan2, nil
	case "asin":
		return ModeASin, nil
	}
	return 0, fmt.Errorf("orientation: unknown pitch mode %q", s)
}

// PitchASin returns asin(clamp(2(wx − yz), −1, 1)) in degrees.
func PitchASin(q Quaternion) float64 {
	arg := 2 * (q.W*q.X - q.Y*q.Z)
	if arg > 1 {
		arg = 1
	} else if arg < -1 {
		arg = -1
	}
	return math.Asin(arg) * 180 / math.Pi
}

// PitchATan2 returns the rotation about the pitch axis in degrees using
// atan2(2(wx + yz), 1 − 2(x² + y²)).
func PitchATan2(q Quaternion) float64 {
	return math.Atan2(2*(q.W*q.X+q.Y*q.Z), 1-2*(q.X*q.X+q.Y*q.Y)) * 180 / math.Pi
}

// Pitch extracts pitch in degrees using the given mode.
func Pitch(q Quaternion, mode Mode) float64 {
	if mode == ModeASin {
		return PitchASin(q)
	}
	return PitchATan2(q)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
