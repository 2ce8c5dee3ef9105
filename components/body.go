package components

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/smartnav/config"
)

// Capsule is the agent's collision shape.
type Capsule struct {
	Height    float64
	Radius    float64
	SkinWidth float64
}

// HalfExtents returns the half-size of the capsule's bounding box.
func (c Capsule) HalfExtents() r3.Vec {
	return r3.Vec{X: c.Radius, Y: c.Height / 2, Z: c.Radius}
}

// Bounds returns the capsule's bounding box centred at pos.
func (c Capsule) Bounds(pos r3.Vec) r3.Box {
	h := c.HalfExtents()
	return r3.Box{Min: r3.Sub(pos, h), Max: r3.Add(pos, h)}
}

// CapsuleFromConfig returns the agent capsule described by cfg.
func CapsuleFromConfig(cfg config.MotionConfig) Capsule {
	return Capsule{
		Height:    cfg.CapsuleHeight,
		Radius:    cfg.CapsuleRadius,
		SkinWidth: cfg.SkinWidth,
	}
}

// Body holds the agent's physical state as seen by the mover.
type Body struct {
	Capsule      Capsule
	Velocity     r3.Vec // realised velocity of the last physics step
	PrevVelocity r3.Vec // velocity at the previous observation, for acceleration
}
