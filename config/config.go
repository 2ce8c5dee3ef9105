// Package config provides configuration loading and access for the training environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ActionSize is the length of the continuous action vector: [jump, forward, rotate, strafe].
const ActionSize = 4

// Config holds all training configuration parameters.
type Config struct {
	Seed          int64               `yaml:"seed"`
	Maps          MapsConfig          `yaml:"maps"`
	Agents        AgentsConfig        `yaml:"agents"`
	Physics       PhysicsConfig       `yaml:"physics"`
	Perception    PerceptionConfig    `yaml:"perception"`
	Motion        MotionConfig        `yaml:"motion"`
	Reward        RewardConfig        `yaml:"reward"`
	Episode       EpisodeConfig       `yaml:"episode"`
	Normalization NormalizationConfig `yaml:"normalization"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// MapsConfig holds map folder and slot layout parameters.
type MapsConfig struct {
	Folder     string  `yaml:"folder"`
	Shuffle    bool    `yaml:"shuffle"`
	SlotMargin float64 `yaml:"slot_margin"` // Gap between neighbouring slots, in map units
}

// AgentsConfig holds agent population parameters.
type AgentsConfig struct {
	Count int `yaml:"count"`
}

// PhysicsConfig holds fixed-step simulation parameters.
type PhysicsConfig struct {
	DT             float64 `yaml:"dt"`              // Seconds per physics step
	DecisionPeriod int     `yaml:"decision_period"` // Physics steps between policy decisions
}

// PerceptionConfig holds square-diamond raycast parameters.
type PerceptionConfig struct {
	GridSize        int     `yaml:"grid_size"`      // Rays = grid_size^2
	HorizontalFOV   float64 `yaml:"horizontal_fov"` // Degrees
	VerticalFOV     float64 `yaml:"vertical_fov"`   // Degrees
	RayLength       float64 `yaml:"ray_length"`
	NumChannels     int     `yaml:"num_channels"` // e.g. regular, lava, water
	ObserveJumpPads bool    `yaml:"observe_jump_pads"`
	LayerMask       uint32  `yaml:"layer_mask"`
}

// MotionConfig holds locomotion constants and the agent capsule shape.
type MotionConfig struct {
	RunAcceleration float64 `yaml:"run_acceleration"`
	JumpForce       float64 `yaml:"jump_force"`
	FallingForce    float64 `yaml:"falling_force"` // Downward acceleration while airborne
	JumpPadOffset   float64 `yaml:"jump_pad_offset"`
	CapsuleHeight   float64 `yaml:"capsule_height"`
	CapsuleRadius   float64 `yaml:"capsule_radius"`
	SkinWidth       float64 `yaml:"skin_width"`
	WaterTime       float64 `yaml:"water_time"` // Seconds an agent survives in water
}

// RewardConfig holds reward magnitudes and thresholds.
type RewardConfig struct {
	Win          float64 `yaml:"win"`
	Lose         float64 `yaml:"lose"`
	TimeStep     float64 `yaml:"time_step"`
	Progress     float64 `yaml:"progress"`
	WinThreshold float64 `yaml:"win_threshold"`
	DeathMargin  float64 `yaml:"death_margin"` // Fall distance below the slot floor that ends the episode
}

// EpisodeConfig holds episode termination and tracking parameters.
type EpisodeConfig struct {
	MaxStepsNotProgressing int `yaml:"max_steps_not_progressing"`
	SuccessWindow          int `yaml:"success_window"`
}

// NormalizationConfig holds observation normalization constants.
type NormalizationConfig struct {
	PlayGroundSize  float64 `yaml:"play_ground_size"`
	MaxVelocity     float64 `yaml:"max_velocity"`
	MaxAcceleration float64 `yaml:"max_acceleration"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow  float64 `yaml:"stats_window"`  // Simulation seconds per stats window
	PerfWindow   int     `yaml:"perf_window"`   // Ticks averaged by the perf collector
	KeepEpisodes int     `yaml:"keep_episodes"` // Episodes held in memory, 0 = all
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	RaysPerChannel  int // grid_size^2
	RaycastSize     int // RaysPerChannel * num_channels
	ObservationSize int // Full observation vector length
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve validates c and recomputes its derived values. Call it after
// editing a copy of a loaded config.
func (c *Config) Resolve() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// Validate reports configuration values that would make the environment unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.Perception.GridSize < 1 {
		errs = append(errs, fmt.Errorf("perception.grid_size must be >= 1, got %d", c.Perception.GridSize))
	}
	if c.Perception.NumChannels < 1 {
		errs = append(errs, fmt.Errorf("perception.num_channels must be >= 1, got %d", c.Perception.NumChannels))
	}
	if c.Perception.RayLength <= 0 {
		errs = append(errs, fmt.Errorf("perception.ray_length must be > 0, got %v", c.Perception.RayLength))
	}
	if c.Physics.DT <= 0 {
		errs = append(errs, fmt.Errorf("physics.dt must be > 0, got %v", c.Physics.DT))
	}
	if c.Physics.DecisionPeriod < 1 {
		errs = append(errs, fmt.Errorf("physics.decision_period must be >= 1, got %d", c.Physics.DecisionPeriod))
	}
	if c.Agents.Count < 1 {
		errs = append(errs, fmt.Errorf("agents.count must be >= 1, got %d", c.Agents.Count))
	}
	if c.Episode.SuccessWindow < 1 {
		errs = append(errs, fmt.Errorf("episode.success_window must be >= 1, got %d", c.Episode.SuccessWindow))
	}
	if c.Normalization.PlayGroundSize <= 0 {
		errs = append(errs, fmt.Errorf("normalization.play_ground_size must be > 0, got %v", c.Normalization.PlayGroundSize))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.RaysPerChannel = c.Perception.GridSize * c.Perception.GridSize
	c.Derived.RaycastSize = c.Derived.RaysPerChannel * c.Perception.NumChannels

	// goal polar (4) + velocity (3) + acceleration (3) + previous action + motion extras (2) + stagnation (1)
	obs := c.Derived.RaycastSize + 4 + 3 + 3 + ActionSize + 2 + 1
	if c.Perception.ObserveJumpPads {
		obs += 4
	}
	c.Derived.ObservationSize = obs
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
