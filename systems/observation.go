package systems

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/smartnav/config"
)

// Observer assembles observation vectors for the learning policy.
//
// Layout: raycast buffer, goal distance, goal direction (3), velocity (3),
// acceleration (3), previous action, motion extras, stagnation ratio, and
// optionally nearest jump pad distance and direction (4). Vectors are
// expressed in the agent's (right, up, forward) frame.
type Observer struct {
	Perception *Perception
	Physics    Physics

	PlayGroundSize         float64
	MaxVelocity            float64
	MaxAcceleration        float64
	MaxStepsNotProgressing int
	ObserveJumpPads        bool
	DT                     float64
}

// NewObserver builds an observer from cfg.
func NewObserver(p *Perception, phys Physics, cfg *config.Config) *Observer {
	return &Observer{
		Perception:             p,
		Physics:                phys,
		PlayGroundSize:         cfg.Normalization.PlayGroundSize,
		MaxVelocity:            cfg.Normalization.MaxVelocity,
		MaxAcceleration:        cfg.Normalization.MaxAcceleration,
		MaxStepsNotProgressing: cfg.Episode.MaxStepsNotProgressing,
		ObserveJumpPads:        cfg.Perception.ObserveJumpPads,
		DT:                     cfg.Physics.DT,
	}
}

// Size returns the observation length for an agent driven by motion.
func (o *Observer) Size(motion Motion) int {
	n := o.Perception.BufferSize() + 4 + 3 + 3 + config.ActionSize + motion.ObservationSize() + 1
	if o.ObserveJumpPads {
		n += 4
	}
	return n
}

// Observe casts the agent's rays into rays and writes the full observation
// into obs, reusing both buffers. It marks the episode as observed.
func (o *Observer) Observe(a AgentState, rays, obs []float32) (raysOut, obsOut []float32) {
	tr := a.Transform
	ep := a.Episode
	b := tr.Basis()

	rays = o.Perception.Cast(o.Physics, tr.Position, b, rays)

	obs = append(obs[:0], rays...)
	obs = appendPolar(obs, b.ToLocal(r3.Sub(ep.Goal, tr.Position)), o.PlayGroundSize)

	vel := a.Body.Velocity
	acc := r3.Scale(1/o.DT, r3.Sub(vel, a.Body.PrevVelocity))
	a.Body.PrevVelocity = vel
	obs = appendVec(obs, r3.Scale(1/o.MaxVelocity, b.ToLocal(vel)))
	obs = appendVec(obs, r3.Scale(1/o.MaxAcceleration, b.ToLocal(acc)))

	obs = append(obs, ep.PrevAction[:]...)
	obs = a.Motion.Observe(a.Locomotion, obs)
	obs = append(obs, float32(float64(ep.StepsNotProgressing)/float64(o.MaxStepsNotProgressing)))

	if o.ObserveJumpPads {
		obs = o.appendJumpPad(obs, a)
	}

	ep.FirstStep = false
	return rays, obs
}

func (o *Observer) appendJumpPad(obs []float32, a AgentState) []float32 {
	m := a.Episode.Slot.Map()
	if m == nil || len(m.JumpPads()) == 0 {
		return append(obs, 0, 0, 0, 0)
	}
	pos := a.Transform.Position
	pad := m.ToWorld(m.NearestJumpPad(m.ToLocal(pos)))
	return appendPolar(obs, a.Transform.Basis().ToLocal(r3.Sub(pad, pos)), o.PlayGroundSize)
}

// appendPolar appends |v|/scale followed by v's unit direction.
func appendPolar(obs []float32, v r3.Vec, scale float64) []float32 {
	obs = append(obs, float32(r3.Norm(v)/scale))
	return appendVec(obs, unitOrZero(v))
}
