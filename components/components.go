// Package components defines ECS components for training agents.
package components

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/smartnav/config"
	"github.com/pthm-cable/smartnav/maps"
)

// Agent identifies a training agent.
type Agent struct {
	ID uint32
}

// Locomotion holds the movement state machine's state.
// GroundedRay is the narrow ray probe straight down; GroundedCapsule is the
// broader capsule probe. They disagree on edges and steep slopes.
type Locomotion struct {
	GroundedRay        bool
	GroundedCapsule    bool
	JumpCooldown       int // physics steps
	DoubleJumpCooldown int // physics steps
	CanDoubleJump      bool
	Velocity           r3.Vec // commanded velocity
}

// Outcome is how an episode ended.
type Outcome uint8

const (
	OutcomeNone      Outcome = iota // Still running
	OutcomeWin                      // Reached the goal
	OutcomeKilled                   // Forced death (hazard)
	OutcomeFell                     // Dropped below the slot floor
	OutcomeStagnated                // Too many steps without progress
)

var outcomeNames = [...]string{"none", "win", "killed", "fell", "stagnated"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Success reports whether the outcome counts as a success.
func (o Outcome) Success() bool { return o == OutcomeWin }

// Episode holds per-agent episode state.
type Episode struct {
	Slot *maps.Slot // nil until the first episode begins

	Spawn      r3.Vec // world
	Goal       r3.Vec // world
	SpawnIndex int    // index of the pair in its map's list
	MapIndex   int

	ClosestDistance     float64
	PrevDistance        float64
	StepsNotProgressing int
	StartRecorded       bool

	Action     [config.ActionSize]float32 // action being applied between decisions
	PrevAction [config.ActionSize]float32 // action applied on the last step

	FirstStep bool // no observation collected yet this episode
	ShouldDie bool // forced death requested by a hazard

	Steps      int
	Return     float64 // cumulative reward this episode
	Count      int     // completed episodes for this agent
	StartTick  int32
	LastResult Outcome
}

// ResetForEpisode clears per-episode counters, keeping slot and count.
func (e *Episode) ResetForEpisode() {
	e.ClosestDistance = math.Inf(1)
	e.PrevDistance = math.Inf(1)
	e.StepsNotProgressing = 0
	e.StartRecorded = false
	e.Action = [config.ActionSize]float32{}
	e.PrevAction = [config.ActionSize]float32{}
	e.FirstStep = true
	e.ShouldDie = false
	e.Steps = 0
	e.Return = 0
}

// Kill requests a losing termination on the next step.
func (e *Episode) Kill() { e.ShouldDie = true }

// Sensor holds the agent's observation buffers.
type Sensor struct {
	Rays        []float32 // grid^2 * channels raycast buffer
	Observation []float32 // full observation vector
}

// NewSensor allocates buffers for the configured sizes.
func NewSensor(raycastSize, observationSize int) Sensor {
	return Sensor{
		Rays:        make([]float32, raycastSize),
		Observation: make([]float32, observationSize),
	}
}

// Contact tracks trigger and hazard contacts across physics steps so enter
// and exit transitions can be detected.
type Contact struct {
	OnJumpPad  bool
	InWater    bool
	WaterTimer float64 // seconds left before drowning
}
