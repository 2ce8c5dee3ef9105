// Package maps owns training maps: their geometry, spawn/goal lists, and the
// pool of world slots that hosts loaded maps for concurrently training agents.
package maps

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// GroundType is the semantic type of a surface. It selects the perception
// channel a ray hit is written to and drives hazard handling.
type GroundType uint8

const (
	GroundDefault GroundType = iota
	GroundLava
	GroundWater
)

var groundNames = [...]string{"default", "lava", "water"}

func (g GroundType) String() string {
	if int(g) < len(groundNames) {
		return groundNames[g]
	}
	return fmt.Sprintf("ground(%d)", g)
}

// ParseGroundType parses a ground type name. The empty string is GroundDefault.
func ParseGroundType(s string) (GroundType, error) {
	if s == "" {
		return GroundDefault, nil
	}
	for i, name := range groundNames {
		if name == s {
			return GroundType(i), nil
		}
	}
	return GroundDefault, fmt.Errorf("unknown ground type %q", s)
}

// MarshalYAML implements yaml.Marshaler.
func (g GroundType) MarshalYAML() (interface{}, error) {
	return g.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (g *GroundType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseGroundType(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// Block is a solid axis-aligned box of map geometry in map-local units.
type Block struct {
	r3.Box `yaml:",inline"`
	Ground GroundType `yaml:"ground"`
	Layer  uint8      `yaml:"layer"`
}

// JumpPad is a trigger volume that launches agents upward.
// Position is the centre of the pad's top face.
type JumpPad struct {
	Position r3.Vec  `yaml:"position"`
	Height   float64 `yaml:"height"` // Apex height the pad is tuned for
	Radius   float64 `yaml:"radius"`
}

// Geometry is one map's loaded level geometry.
type Geometry struct {
	Name     string    `yaml:"name"`
	Scale    float64   `yaml:"scale"`
	Blocks   []Block   `yaml:"blocks"`
	JumpPads []JumpPad `yaml:"jump_pads"`
}

// EffectiveScale returns Scale, treating zero as 1.
func (g *Geometry) EffectiveScale() float64 {
	if g.Scale == 0 {
		return 1
	}
	return g.Scale
}

// Bounds returns the union of all blocks. An empty geometry has zero bounds.
func (g *Geometry) Bounds() r3.Box {
	if len(g.Blocks) == 0 {
		return r3.Box{}
	}
	b := g.Blocks[0].Box
	for _, blk := range g.Blocks[1:] {
		b.Min.X = math.Min(b.Min.X, blk.Min.X)
		b.Min.Y = math.Min(b.Min.Y, blk.Min.Y)
		b.Min.Z = math.Min(b.Min.Z, blk.Min.Z)
		b.Max.X = math.Max(b.Max.X, blk.Max.X)
		b.Max.Y = math.Max(b.Max.Y, blk.Max.Y)
		b.Max.Z = math.Max(b.Max.Z, blk.Max.Z)
	}
	return b
}

// Width returns the map's extent along X, rounded up to a whole unit.
func (g *Geometry) Width() float64 {
	return math.Ceil(g.Bounds().Max.X)
}

// SpawnGoal is one episode's start and target position in map-local units.
type SpawnGoal struct {
	Spawn r3.Vec
	Goal  r3.Vec
}
