package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/smartnav/components"
	"github.com/pthm-cable/smartnav/config"
)

// Action vector layout.
const (
	ActJump = iota
	ActForward
	ActRotate
	ActStrafe
)

// Motion is a locomotion model. Implementations keep their per-agent state in
// components.Locomotion so one Motion can drive many agents.
type Motion interface {
	// Reset clears the state at episode start.
	Reset(loc *components.Locomotion)
	// Sense refreshes the ground estimates from the physics world.
	Sense(p Physics, pos r3.Vec, c components.Capsule, loc *components.Locomotion)
	// Move applies one physics step of the action, turning tr and returning
	// the velocity the mover should apply.
	Move(loc *components.Locomotion, tr *components.Transform, action [config.ActionSize]float32) r3.Vec
	// OnJumpPadEnter applies a jump pad impulse.
	OnJumpPadEnter(loc *components.Locomotion, padHeight float64)
	// Observe appends the motion-specific observation values.
	Observe(loc *components.Locomotion, dst []float32) []float32
	// ObservationSize is the number of values Observe appends.
	ObservationSize() int
	// IsOnGround reports the primary ground estimate.
	IsOnGround(loc *components.Locomotion) bool
}

// Input shaping constants.
const (
	minForward     = -0.6
	maxForward     = 1.0
	forwardBoost   = 1.1 // lets the agent reach full speed going forward
	strafeScale    = 0.6
	turnDegPerSec  = 180.0
	jumpPressLimit = 0.0 // jump when the action exceeds this
)

// SmartNavMotion is the default run/jump/double-jump locomotion model.
type SmartNavMotion struct {
	RunAcceleration float64
	JumpForce       float64
	FallingForce    float64
	JumpPadOffset   float64
	DecisionPeriod  int     // cooldown length, in physics steps
	DT              float64 // seconds per physics step
}

// NewSmartNavMotion builds the motion model from cfg.
func NewSmartNavMotion(cfg *config.Config) *SmartNavMotion {
	return &SmartNavMotion{
		RunAcceleration: cfg.Motion.RunAcceleration,
		JumpForce:       cfg.Motion.JumpForce,
		FallingForce:    cfg.Motion.FallingForce,
		JumpPadOffset:   cfg.Motion.JumpPadOffset,
		DecisionPeriod:  cfg.Physics.DecisionPeriod,
		DT:              cfg.Physics.DT,
	}
}

// Reset implements Motion.
func (m *SmartNavMotion) Reset(loc *components.Locomotion) {
	*loc = components.Locomotion{
		GroundedRay:     true,
		GroundedCapsule: true,
		CanDoubleJump:   true,
	}
}

// Sense implements Motion.
func (m *SmartNavMotion) Sense(p Physics, pos r3.Vec, c components.Capsule, loc *components.Locomotion) {
	loc.GroundedRay = p.GroundedRay(pos, c)
	loc.GroundedCapsule = p.GroundedCapsule(pos, c)
}

// Move implements Motion.
func (m *SmartNavMotion) Move(loc *components.Locomotion, tr *components.Transform, action [config.ActionSize]float32) r3.Vec {
	jump := float64(action[ActJump]) > jumpPressLimit
	forward := clampFloat(float64(action[ActForward]), minForward, maxForward) * forwardBoost
	rotate := float64(action[ActRotate])
	strafe := float64(action[ActStrafe]) * strafeScale

	b := tr.Basis()
	dir := r3.Add(r3.Scale(forward, b.Forward), r3.Scale(strafe, b.Right))
	if r3.Norm(dir) > 1 {
		dir = r3.Unit(dir)
	}

	v := loc.Velocity
	v.X = dir.X * m.RunAcceleration
	v.Z = dir.Z * m.RunAcceleration

	if loc.GroundedRay {
		if loc.JumpCooldown <= 0 {
			v.Y = 0
		}
		loc.CanDoubleJump = true
	} else {
		v.Y -= m.FallingForce * m.DT
		// On a slope too steep to stand on only the capsule probe touches;
		// no double jump there so the agent cannot climb it.
		if loc.GroundedCapsule {
			loc.CanDoubleJump = false
		}
	}

	if jump {
		switch {
		case loc.JumpCooldown <= 0 && loc.GroundedRay:
			v.Y = m.JumpForce
			loc.JumpCooldown = m.DecisionPeriod
			loc.DoubleJumpCooldown = m.DecisionPeriod
		case loc.CanDoubleJump && !loc.GroundedCapsule && loc.DoubleJumpCooldown <= 0:
			v.Y = m.JumpForce
			loc.JumpCooldown = m.DecisionPeriod
			loc.CanDoubleJump = false
		}
	}

	tr.Rotate(deg2rad(rotate * turnDegPerSec * m.DT))

	loc.Velocity = v
	loc.JumpCooldown--
	loc.DoubleJumpCooldown--
	return v
}

// JumpPadVelocity is the vertical speed that carries a body offset units
// above a pad of the given height under fallingForce.
func JumpPadVelocity(fallingForce, padHeight, offset float64) float64 {
	return math.Sqrt(2 * fallingForce * (padHeight + offset))
}

// OnJumpPadEnter implements Motion.
func (m *SmartNavMotion) OnJumpPadEnter(loc *components.Locomotion, padHeight float64) {
	loc.Velocity.Y = JumpPadVelocity(m.FallingForce, padHeight, m.JumpPadOffset)
	loc.JumpCooldown = m.DecisionPeriod
}

// Observe implements Motion: grounded flag, then can-double-jump flag.
func (m *SmartNavMotion) Observe(loc *components.Locomotion, dst []float32) []float32 {
	return append(dst, boolFloat(loc.GroundedRay), boolFloat(loc.CanDoubleJump))
}

// ObservationSize implements Motion.
func (m *SmartNavMotion) ObservationSize() int { return 2 }

// IsOnGround implements Motion.
func (m *SmartNavMotion) IsOnGround(loc *components.Locomotion) bool { return loc.GroundedRay }

func boolFloat(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
