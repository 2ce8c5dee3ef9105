package systems

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/smartnav/components"
	"github.com/pthm-cable/smartnav/config"
	"github.com/pthm-cable/smartnav/maps"
)

// AgentState is one agent's components as the episode systems see them.
type AgentState struct {
	Transform  *components.Transform
	Body       *components.Body
	Locomotion *components.Locomotion
	Episode    *components.Episode
	Contact    *components.Contact
	Motion     Motion
}

// StepResult is the outcome of one physics step.
type StepResult struct {
	Reward   float64
	Distance float64
	Done     bool
	Outcome  components.Outcome
}

// EpisodeController runs agent episodes: spawning from the slot pool,
// stepping locomotion through physics, scoring, and termination.
type EpisodeController struct {
	Pool    *maps.Pool
	Physics Physics
	Hazards HazardTracker

	Reward                 config.RewardConfig
	MaxStepsNotProgressing int
	PlayGroundSize         float64
	DT                     float64
}

// NewEpisodeController builds a controller from cfg.
func NewEpisodeController(pool *maps.Pool, phys Physics, cfg *config.Config) *EpisodeController {
	return &EpisodeController{
		Pool:    pool,
		Physics: phys,
		Hazards: HazardTracker{
			WaterTime: cfg.Motion.WaterTime,
			DT:        cfg.Physics.DT,
		},
		Reward:                 cfg.Reward,
		MaxStepsNotProgressing: cfg.Episode.MaxStepsNotProgressing,
		PlayGroundSize:         cfg.Normalization.PlayGroundSize,
		DT:                     cfg.Physics.DT,
	}
}

// Begin starts a new episode: it keeps the agent's slot unless its map is
// finished, draws the next spawn/goal pair, and places the agent.
func (ec *EpisodeController) Begin(a AgentState) error {
	ep := a.Episode
	slot, sg, err := ec.Pool.BeginEpisode(ep.Slot)
	if err != nil {
		return fmt.Errorf("beginning episode: %w", err)
	}
	m := slot.Map()
	lift := r3.Vec{Y: a.Body.Capsule.Height / 2}

	ep.ResetForEpisode()
	ep.Slot = slot
	ep.MapIndex = m.Index()
	ep.SpawnIndex = m.Cursor() - 1
	ep.Spawn = r3.Add(m.ToWorld(sg.Spawn), lift)
	ep.Goal = r3.Add(m.ToWorld(sg.Goal), lift)

	a.Transform.Position = ep.Spawn
	a.Transform.Heading = components.NormalizeAngle(deg2rad(sg.Spawn.X))
	a.Body.Velocity = r3.Vec{}
	a.Body.PrevVelocity = r3.Vec{}
	a.Motion.Reset(a.Locomotion)
	ec.Hazards.Reset(a.Contact)
	return nil
}

// Release removes the agent from its slot, for shutdown.
func (ec *EpisodeController) Release(a AgentState) {
	if a.Episode.Slot != nil {
		ec.Pool.RemoveAgent(a.Episode.Slot)
		a.Episode.Slot = nil
	}
}

// Step advances the agent by one physics step using its current action and
// scores the result. A done result has already updated the episode count and
// outcome; the caller must Begin the next episode.
func (ec *EpisodeController) Step(a AgentState) StepResult {
	ep := a.Episode
	tr := a.Transform
	capsule := a.Body.Capsule

	action := ep.Action
	if ep.FirstStep {
		action[ActJump] = 0
	}

	a.Motion.Sense(ec.Physics, tr.Position, capsule, a.Locomotion)
	vel := a.Motion.Move(a.Locomotion, tr, action)

	start := tr.Position
	tr.Position = ec.Physics.Move(start, r3.Scale(ec.DT, vel), capsule)
	a.Body.Velocity = r3.Scale(1/ec.DT, r3.Sub(tr.Position, start))

	ev := ec.Hazards.Update(a.Contact, ec.Physics.Touching(tr.Position, capsule))
	if ev.JumpPadEntered {
		a.Motion.OnJumpPadEnter(a.Locomotion, ev.PadHeight)
	}
	if ev.Killed || ev.Drowned {
		ep.Kill()
	}
	ep.PrevAction = action

	dist := r3.Norm(r3.Sub(tr.Position, ep.Goal))
	res := ec.Evaluate(ep, dist, tr.Position.Y, ep.Slot.Floor())

	ep.Steps++
	ep.Return += res.Reward
	if res.Done {
		ep.Count++
		ep.LastResult = res.Outcome
	}
	return res
}

// Evaluate scores one step given the agent's distance to its goal and height.
// Progress is rewarded only for beating the episode's closest distance;
// other steps count toward stagnation. Termination is checked in priority
// order: win, forced death, falling below the floor, then stagnation. A
// terminal reward replaces the step reward.
func (ec *EpisodeController) Evaluate(ep *components.Episode, dist, height, floor float64) StepResult {
	res := StepResult{Reward: ec.Reward.TimeStep, Distance: dist}
	if ep.FirstStep {
		return res
	}

	if !math.IsInf(ep.PrevDistance, 1) {
		if dist < ep.ClosestDistance {
			res.Reward += ec.Reward.Progress * math.Max(ep.ClosestDistance-dist, 0) / ec.PlayGroundSize
			ep.ClosestDistance = dist
		} else {
			ep.StepsNotProgressing++
		}
	}

	switch {
	case dist < ec.Reward.WinThreshold:
		res = terminal(ec.Reward.Win, dist, components.OutcomeWin)
	case ep.ShouldDie:
		ep.ShouldDie = false
		res = terminal(ec.Reward.Lose, dist, components.OutcomeKilled)
	case height < floor-ec.Reward.DeathMargin:
		res = terminal(ec.Reward.Lose, dist, components.OutcomeFell)
	case ep.StepsNotProgressing > ec.MaxStepsNotProgressing:
		res = terminal(ec.Reward.Lose, dist, components.OutcomeStagnated)
	}

	if !ep.StartRecorded {
		ep.StartRecorded = true
		ep.ClosestDistance = dist
	}
	ep.PrevDistance = dist
	return res
}

func terminal(reward, dist float64, o components.Outcome) StepResult {
	return StepResult{Reward: reward, Distance: dist, Done: true, Outcome: o}
}
