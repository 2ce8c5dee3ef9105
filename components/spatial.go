package components

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// World axes. Y is up; a heading of zero faces +Z.
var (
	AxisUp      = r3.Vec{Y: 1}
	AxisForward = r3.Vec{Z: 1}
	AxisRight   = r3.Vec{X: 1}
)

// Transform represents an agent's world position and heading.
// Position is the centre of the agent's capsule.
type Transform struct {
	Position r3.Vec
	Heading  float64 // radians, clockwise seen from above
}

// Basis is an orthonormal egocentric frame.
type Basis struct {
	Forward, Right, Up r3.Vec
}

// Basis returns the agent's egocentric frame.
func (t *Transform) Basis() Basis {
	rot := r3.NewRotation(t.Heading, AxisUp)
	return Basis{
		Forward: rot.Rotate(AxisForward),
		Right:   rot.Rotate(AxisRight),
		Up:      AxisUp,
	}
}

// Rotate turns the heading by delta radians, keeping it in [-pi, pi].
func (t *Transform) Rotate(delta float64) {
	t.Heading = NormalizeAngle(t.Heading + delta)
}

// ToLocal expresses a world direction in the basis frame as (right, up, forward).
func (b Basis) ToLocal(v r3.Vec) r3.Vec {
	return r3.Vec{X: r3.Dot(v, b.Right), Y: r3.Dot(v, b.Up), Z: r3.Dot(v, b.Forward)}
}

// NormalizeAngle wraps angle to [-pi, pi].
func NormalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
