package maps

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrNoMaps is returned when a map folder holds no map directories.
	ErrNoMaps = errors.New("no maps found")
	// ErrEmptySpawnGoals is returned when a map has no spawn/goal pairs.
	ErrEmptySpawnGoals = errors.New("map has no spawn/goal pairs")
	// ErrInsufficientCapacity is returned when a map has fewer spawn/goal pairs than agents.
	ErrInsufficientCapacity = errors.New("not enough spawn/goal pairs for agent count")
)

// Map is one training map: its ordered spawn/goal pairs, a cursor into
// them, and geometry that is only held while the map is loaded.
type Map struct {
	index   int
	path    string
	storage Storage

	spawnGoals []SpawnGoal
	cursor     int

	geometry *Geometry
	offset   r3.Vec
	jumpPads []r3.Vec // map-local, in load enumeration order
}

// NewMap reads the spawn/goal list of the map at path. Geometry is not loaded.
func NewMap(storage Storage, path string, index int) (*Map, error) {
	pairs, err := storage.LoadSpawnGoals(path)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("map %s: %w", path, ErrEmptySpawnGoals)
	}
	return &Map{
		index:      index,
		path:       path,
		storage:    storage,
		spawnGoals: pairs,
	}, nil
}

// Index returns the map's position in the cycling order.
func (m *Map) Index() int { return m.index }

// Path returns the map's storage path.
func (m *Map) Path() string { return m.path }

// NumSpawnGoals returns the number of spawn/goal pairs.
func (m *Map) NumSpawnGoals() int { return len(m.spawnGoals) }

// Cursor returns how many pairs have been handed out since the last restart.
func (m *Map) Cursor() int { return m.cursor }

// Finished reports whether every spawn/goal pair has been handed out.
func (m *Map) Finished() bool { return m.cursor == len(m.spawnGoals) }

// Restart rewinds the cursor to the first pair.
func (m *Map) Restart() { m.cursor = 0 }

// NextSpawnGoal returns the pair at the cursor and advances it.
// Callers must check Finished first.
func (m *Map) NextSpawnGoal() SpawnGoal {
	if m.Finished() {
		panic(fmt.Sprintf("maps: NextSpawnGoal called on finished map %s", m.path))
	}
	sg := m.spawnGoals[m.cursor]
	m.cursor++
	return sg
}

// Load reads the map geometry and places it at offset.
// A storage that returns no geometry and no error indicates a broken map asset and panics.
func (m *Map) Load(offset r3.Vec) error {
	g, err := m.storage.LoadGeometry(m.path)
	if err != nil {
		return fmt.Errorf("loading map %s: %w", m.path, err)
	}
	if g == nil {
		panic(fmt.Sprintf("maps: geometry missing after load of %s", m.path))
	}

	m.geometry = g
	m.offset = offset
	m.jumpPads = make([]r3.Vec, len(g.JumpPads))
	for i, pad := range g.JumpPads {
		m.jumpPads[i] = pad.Position
	}
	return nil
}

// Unload drops the geometry and rewinds the cursor.
func (m *Map) Unload() {
	m.geometry = nil
	m.jumpPads = nil
	m.offset = r3.Vec{}
	m.cursor = 0
}

// Loaded reports whether the geometry is held.
func (m *Map) Loaded() bool { return m.geometry != nil }

// Geometry returns the loaded geometry, or nil.
func (m *Map) Geometry() *Geometry { return m.geometry }

// Offset returns the world offset the map was loaded at.
func (m *Map) Offset() r3.Vec { return m.offset }

// Scale returns the loaded geometry's scale, or 1 when unloaded.
func (m *Map) Scale() float64 {
	if m.geometry == nil {
		return 1
	}
	return m.geometry.EffectiveScale()
}

// ToWorld converts a map-local position to world space.
func (m *Map) ToWorld(local r3.Vec) r3.Vec {
	return r3.Add(m.offset, r3.Scale(m.Scale(), local))
}

// ToLocal converts a world position to map-local space.
func (m *Map) ToLocal(world r3.Vec) r3.Vec {
	return r3.Scale(1/m.Scale(), r3.Sub(world, m.offset))
}

// JumpPads returns the map-local jump pad positions of the loaded map.
func (m *Map) JumpPads() []r3.Vec { return m.jumpPads }

// NearestJumpPad returns the map-local jump pad closest to the map-local
// position. Ties go to the pad enumerated first. Returns the zero vector
// when the map has no pads.
func (m *Map) NearestJumpPad(position r3.Vec) r3.Vec {
	var nearest r3.Vec
	closest := math.MaxFloat64
	for _, pad := range m.jumpPads {
		d := r3.Norm(r3.Sub(position, pad))
		if d < closest {
			closest = d
			nearest = pad
		}
	}
	return nearest
}
