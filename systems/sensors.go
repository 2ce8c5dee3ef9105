package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/smartnav/components"
	"github.com/pthm-cable/smartnav/config"
	"github.com/pthm-cable/smartnav/maps"
)

// AnglePair is one ray's direction relative to the agent's forward axis, in
// degrees. H is positive to the right, V positive upwards, so the first
// diamond row looks down and the last looks up. Engines that pitch by a
// positive rotation about the right axis tilt down instead; their ray order
// is this one mirrored vertically.
type AnglePair struct {
	H, V float64
}

// AngleTable maps ray index to its angle pair.
type AngleTable []AnglePair

// DiamondRows returns the number of diagonal rows in a diamond of the given size.
func DiamondRows(gridSize int) int { return 2*gridSize - 1 }

// RowRayCount returns how many rays sit on diagonal row r.
func RowRayCount(gridSize, r int) int {
	if r < gridSize {
		return r + 1
	}
	return 2*gridSize - 1 - r
}

// BuildAngleTable lays out gridSize*gridSize rays in a square-diamond pattern.
// Ray i sits on diagonal row i%gridSize + i/gridSize; rays on a row are spread
// evenly across hFov with rowCount+1 divisions, and rows are spread across vFov
// the same way, so no ray lies exactly on the field-of-view edge.
func BuildAngleTable(gridSize int, hFov, vFov float64) AngleTable {
	n := gridSize
	if n <= 0 {
		return nil
	}
	rows := DiamondRows(n)
	seen := make([]int, rows)
	table := make(AngleTable, n*n)

	for i := range table {
		row := i%n + i/n
		col := seen[row]
		seen[row]++

		count := RowRayCount(n, row)
		table[i] = AnglePair{
			H: -hFov/2 + float64(col+1)*hFov/float64(count+1),
			V: -vFov/2 + float64(row+1)*vFov/float64(rows+1),
		}
	}
	return table
}

// Direction returns the world-space unit direction of an angle pair in basis b.
func (a AnglePair) Direction(b components.Basis) r3.Vec {
	h, v := deg2rad(a.H), deg2rad(a.V)
	flat := r3.Add(r3.Scale(math.Cos(h), b.Forward), r3.Scale(math.Sin(h), b.Right))
	return r3.Add(r3.Scale(math.Cos(v), flat), r3.Scale(math.Sin(v), b.Up))
}

// Perception bundles an angle table with its casting parameters.
type Perception struct {
	Table    AngleTable
	Range    float64
	Mask     uint32
	Channels int
}

// NewPerception builds the perception model from cfg.
func NewPerception(cfg config.PerceptionConfig) *Perception {
	return &Perception{
		Table:    BuildAngleTable(cfg.GridSize, cfg.HorizontalFOV, cfg.VerticalFOV),
		Range:    cfg.RayLength,
		Mask:     cfg.LayerMask,
		Channels: cfg.NumChannels,
	}
}

// BufferSize returns the length of the flat raycast buffer.
func (p *Perception) BufferSize() int { return len(p.Table) * max(p.Channels, 1) }

// Cast fills buf with one cast per ray. See CastAll.
func (p *Perception) Cast(rc Raycaster, origin r3.Vec, b components.Basis, buf []float32) []float32 {
	return CastAll(rc, origin, b, p.Table, p.Range, p.Mask, p.Channels, buf)
}

// CastAll casts one ray per table entry from origin and writes
// max(0, 1-distance/maxRange) into buf[ray + channel*len(table)]. Every other
// channel for that ray is zero, as is every channel of a ray that hits nothing.
// buf is reused when large enough.
func CastAll(rc Raycaster, origin r3.Vec, b components.Basis, table AngleTable, maxRange float64, mask uint32, channels int, buf []float32) []float32 {
	if channels < 1 {
		channels = 1
	}
	rays := len(table)
	size := rays * channels
	if cap(buf) < size {
		buf = make([]float32, size)
	}
	buf = buf[:size]
	clear(buf)

	for i, a := range table {
		hit, ok := rc.Raycast(origin, a.Direction(b), maxRange, mask)
		if !ok {
			continue
		}
		ch := channelFor(hit.Ground, channels)
		buf[i+ch*rays] = float32(clamp01(1 - hit.Distance/maxRange))
	}
	return buf
}

// channelFor picks the buffer channel for a struck surface. Untyped surfaces
// and single-channel layouts use channel 0.
func channelFor(g maps.GroundType, channels int) int {
	if channels <= 1 || int(g) >= channels {
		return 0
	}
	return int(g)
}
