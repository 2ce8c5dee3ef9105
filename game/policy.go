package game

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/smartnav/config"
	"github.com/pthm-cable/smartnav/maps"
	"github.com/pthm-cable/smartnav/neural"
	"github.com/pthm-cable/smartnav/systems"
)

// Policy names accepted by NewPolicy.
const (
	PolicyHeuristic = "heuristic"
	PolicyRandom    = "random"
	PolicyNetwork   = "network"
)

// Action is one continuous action vector: jump, forward, rotate, strafe.
type Action = [config.ActionSize]float32

// Decision is what a policy sees when an agent requests an action.
type Decision struct {
	AgentID     uint32
	Rays        []float32 // raycast buffer, channel-major
	Observation []float32 // full observation; starts with Rays
}

// Policy maps observations to actions. Policies are called from a single
// goroutine.
type Policy interface {
	Act(d Decision) Action
}

// NewPolicy builds a named policy. weights is only used by the network
// policy; without it the network starts from random weights.
func NewPolicy(name string, rng *rand.Rand, p *systems.Perception, obsSize int, weights string) (Policy, error) {
	switch name {
	case PolicyHeuristic:
		return NewHeuristicPolicy(p, DefaultHeuristicParams()), nil
	case PolicyRandom:
		return NewRandomPolicy(rng), nil
	case PolicyNetwork:
		if weights == "" {
			return NewNetworkPolicy(neural.NewFFNN(rng, obsSize, 32, config.ActionSize)), nil
		}
		nn, err := neural.Load(weights)
		if err != nil {
			return nil, err
		}
		if in, _, out := nn.Dims(); in != obsSize || out != config.ActionSize {
			return nil, fmt.Errorf("network %s expects %d inputs and %d outputs, have %d and %d",
				weights, in, out, obsSize, config.ActionSize)
		}
		return NewNetworkPolicy(nn), nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

// HeuristicParams tunes the scripted controller.
type HeuristicParams struct {
	TurnGain       float64 `yaml:"turn_gain"`       // rotate input per quarter turn of goal bearing
	SlowAngle      float64 `yaml:"slow_angle"`      // radians; forward input falls to zero at this bearing
	JumpRange      float64 `yaml:"jump_range"`      // fraction of ray length at which obstacles trigger a jump
	ClimbThreshold float64 `yaml:"climb_threshold"` // goal direction up component that triggers a jump
}

// LoadHeuristicParams reads params from a YAML file over the defaults.
func LoadHeuristicParams(path string) (HeuristicParams, error) {
	p := DefaultHeuristicParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading heuristic params: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing heuristic params %s: %w", path, err)
	}
	if p.SlowAngle <= 0 {
		return p, fmt.Errorf("heuristic slow_angle must be positive, got %f", p.SlowAngle)
	}
	return p, nil
}

// WriteYAML writes the params to path.
func (p HeuristicParams) WriteYAML(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultHeuristicParams returns the hand-picked defaults.
func DefaultHeuristicParams() HeuristicParams {
	return HeuristicParams{
		TurnGain:       2,
		SlowAngle:      math.Pi / 2,
		JumpRange:      0.25,
		ClimbThreshold: 0.5,
	}
}

// HeuristicPolicy steers toward the goal and jumps over walls ahead, lava
// ahead, and toward goals above it.
type HeuristicPolicy struct {
	Params HeuristicParams

	rays        int
	channels    int
	forwardRays []int // near-horizontal rays in front
	hazardRays  []int // downward rays in front
}

// NewHeuristicPolicy indexes the rays the controller watches.
func NewHeuristicPolicy(p *systems.Perception, params HeuristicParams) *HeuristicPolicy {
	h := &HeuristicPolicy{
		Params:   params,
		rays:     len(p.Table),
		channels: max(p.Channels, 1),
	}
	for i, a := range p.Table {
		if math.Abs(a.H) > 30 {
			continue
		}
		switch {
		case a.V >= 0 && a.V <= 12:
			h.forwardRays = append(h.forwardRays, i)
		case a.V >= -60 && a.V <= -15:
			h.hazardRays = append(h.hazardRays, i)
		}
	}
	return h
}

// Act implements Policy.
func (h *HeuristicPolicy) Act(d Decision) Action {
	var act Action
	goal := h.rays * h.channels
	if len(d.Observation) < goal+4 {
		return act
	}
	right := float64(d.Observation[goal+1])
	up := float64(d.Observation[goal+2])
	fwd := float64(d.Observation[goal+3])

	bearing := math.Atan2(right, fwd)
	act[systems.ActRotate] = float32(clampUnit(h.Params.TurnGain * bearing / (math.Pi / 2)))
	act[systems.ActForward] = float32(math.Max(0, math.Min(1, 1-math.Abs(bearing)/h.Params.SlowAngle)))

	act[systems.ActJump] = -1
	if up > h.Params.ClimbThreshold || h.obstacleAhead(d.Rays) || h.hazardAhead(d.Rays) {
		act[systems.ActJump] = 1
	}
	return act
}

func (h *HeuristicPolicy) obstacleAhead(rays []float32) bool {
	limit := float32(1 - h.Params.JumpRange)
	for _, i := range h.forwardRays {
		for c := 0; c < h.channels; c++ {
			if idx := i + c*h.rays; idx < len(rays) && rays[idx] > limit {
				return true
			}
		}
	}
	return false
}

func (h *HeuristicPolicy) hazardAhead(rays []float32) bool {
	if h.channels <= int(maps.GroundLava) {
		return false
	}
	base := int(maps.GroundLava) * h.rays
	for _, i := range h.hazardRays {
		if idx := base + i; idx < len(rays) && rays[idx] > 0 {
			return true
		}
	}
	return false
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// RandomPolicy draws every action uniformly from [-1, 1].
type RandomPolicy struct {
	rng *rand.Rand
}

// NewRandomPolicy creates a random policy.
func NewRandomPolicy(rng *rand.Rand) *RandomPolicy {
	return &RandomPolicy{rng: rng}
}

// Act implements Policy.
func (r *RandomPolicy) Act(Decision) Action {
	var act Action
	for i := range act {
		act[i] = r.rng.Float32()*2 - 1
	}
	return act
}

// NetworkPolicy runs the observation through a feedforward network.
type NetworkPolicy struct {
	Net *neural.FFNN
	out []float32
}

// NewNetworkPolicy wraps nn, which must have config.ActionSize outputs.
func NewNetworkPolicy(nn *neural.FFNN) *NetworkPolicy {
	return &NetworkPolicy{Net: nn, out: make([]float32, config.ActionSize)}
}

// Act implements Policy.
func (n *NetworkPolicy) Act(d Decision) Action {
	n.out = n.Net.Forward(d.Observation, n.out)
	var act Action
	copy(act[:], n.out)
	return act
}
